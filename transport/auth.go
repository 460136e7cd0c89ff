package transport

import (
	"bufio"
	"encoding/hex"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kvark9/dbuscore/dbuserr"
)

// auth implements the three-step authentication contract spec.md §6
// calls the auth collaborator: doAuth, negotiateUnixFDs, sendBegin,
// invoked in that order by Connect. It speaks the EXTERNAL
// mechanism, split into separate steps so UnixFdNegotiationFailed can
// be told apart from AuthFailed.
type auth struct {
	r *bufio.Reader
	w io.Writer
}

func newAuth(rw io.ReadWriter) *auth {
	return &auth{r: bufio.NewReader(rw), w: rw}
}

// doAuth speaks the EXTERNAL mechanism, authenticating with the
// connecting process's uid, which is all a unix-domain bus peer
// needs: it reads the real credentials off the socket itself.
func (a *auth) doAuth() error {
	uid := hex.EncodeToString([]byte(strconv.Itoa(os.Getuid())))
	if _, err := io.WriteString(a.w, "\x00AUTH EXTERNAL "+uid+"\r\n"); err != nil {
		return dbuserr.IO(err)
	}
	line, err := a.r.ReadString('\n')
	if err != nil {
		return dbuserr.IO(err)
	}
	if !strings.HasPrefix(line, "OK ") {
		return dbuserr.ErrAuthFailed
	}
	return nil
}

// negotiateUnixFDs asks the bus to allow SCM_RIGHTS-passed file
// descriptors over this connection.
func (a *auth) negotiateUnixFDs() error {
	if _, err := io.WriteString(a.w, "NEGOTIATE_UNIX_FD\r\n"); err != nil {
		return dbuserr.IO(err)
	}
	line, err := a.r.ReadString('\n')
	if err != nil {
		return dbuserr.IO(err)
	}
	if line != "AGREE_UNIX_FD\r\n" {
		return dbuserr.ErrUnixFDNegotiationFailed
	}
	return nil
}

// sendBegin ends the SASL conversation and switches the connection
// over to DBus message framing. The bus does not reply to BEGIN.
func (a *auth) sendBegin() error {
	if _, err := io.WriteString(a.w, "BEGIN\r\n"); err != nil {
		return dbuserr.IO(err)
	}
	return nil
}

// buffered reports whether the auth conversation's bufio.Reader has
// buffered bytes beyond the lines it has already consumed. The DBus
// auth protocol guarantees the bus sends nothing further until it
// sees BEGIN, so in practice this is always zero once auth succeeds;
// Connect checks it anyway rather than silently dropping bytes.
func (a *auth) buffered() int {
	return a.r.Buffered()
}
