package helper

import (
	"bufio"
	"fmt"
	"io"
	"net/http"

	"github.com/veilproto/htx/internal/xerrors"
)

// sendConnectPrelude writes an HTTP/1.1 CONNECT request for targetHostPort
// on rw (the freshly opened inner stream) and blocks for the cooperating
// edge terminator's response, per §4.9. Only a 200 response leaves the
// stream ready to carry raw relayed bytes; anything else is a failure and
// rw must not be used further. Because parsing the response requires a
// buffered reader, any bytes the edge already sent past the header
// terminator are returned as leftover and must be replayed to the first
// application Read.
func sendConnectPrelude(rw io.ReadWriter, targetHostPort string) (leftover []byte, err error) {
	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n", targetHostPort, targetHostPort)
	if _, err := io.WriteString(rw, req); err != nil {
		return nil, xerrors.Wrap(xerrors.KindIO, "helper", "writing CONNECT prelude failed", err)
	}

	br := bufio.NewReader(rw)
	resp, err := http.ReadResponse(br, &http.Request{Method: http.MethodConnect})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindHandshakeFailed, "helper", "reading CONNECT response failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.New(xerrors.KindHandshakeFailed, "helper", fmt.Sprintf("edge terminator refused CONNECT: %s", resp.Status))
	}

	if n := br.Buffered(); n > 0 {
		leftover = make([]byte, n)
		_, _ = io.ReadFull(br, leftover)
	}
	return leftover, nil
}
