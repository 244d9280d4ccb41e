package helper

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/veilproto/htx/internal/stream"
)

// htxAddr is the synthetic net.Addr reported for the inner stream's
// endpoints: there is no socket address for a multiplexed stream, only the
// decoy host:port the underlying HTX connection dialed.
type htxAddr string

func (a htxAddr) Network() string { return "htx" }
func (a htxAddr) String() string  { return string(a) }

// streamNetConn adapts one multiplexed Stream, plus the HTX Conn that owns
// it, to net.Conn so it can be handed to a SOCKS5 library expecting a plain
// connection to relay bytes over. Closing it tears down the whole
// underlying HTX connection: the helper opens one fresh HTX connection per
// accepted SOCKS connection rather than pooling them.
type streamNetConn struct {
	st   *stream.Stream
	conn *stream.Conn
	ctx  context.Context

	remote htxAddr

	pending []byte

	closeOnce sync.Once
	onClose   func()
}

func newStreamNetConn(ctx context.Context, st *stream.Stream, conn *stream.Conn, remote string) *streamNetConn {
	return &streamNetConn{st: st, conn: conn, ctx: ctx, remote: htxAddr(remote)}
}

// seed primes the next Read with bytes already pulled off the wire (by the
// CONNECT-prelude parser) before the application started reading.
func (c *streamNetConn) seed(leftover []byte) {
	c.pending = append(leftover, c.pending...)
}

func (c *streamNetConn) Read(p []byte) (int, error) {
	if len(c.pending) == 0 {
		chunk, err := c.st.Read(c.ctx)
		if err != nil {
			return 0, err
		}
		c.pending = chunk
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *streamNetConn) Write(p []byte) (int, error) {
	return c.st.Write(c.ctx, p)
}

// Close closes the stream and, with it, the entire HTX connection it was
// opened on.
func (c *streamNetConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.st.Close(context.Background())
		err = c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	})
	return err
}

func (c *streamNetConn) LocalAddr() net.Addr  { return htxAddr("local") }
func (c *streamNetConn) RemoteAddr() net.Addr { return c.remote }

// Deadlines are not modeled at the stream layer: Read/Write suspend only on
// application context cancellation or genuine flow-control/back-pressure
// waits per §5. Callers that need a hard timeout should derive a
// context.WithDeadline and thread it through instead.
func (c *streamNetConn) SetDeadline(time.Time) error      { return nil }
func (c *streamNetConn) SetReadDeadline(time.Time) error  { return nil }
func (c *streamNetConn) SetWriteDeadline(time.Time) error { return nil }
