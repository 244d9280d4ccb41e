package stream

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/veilproto/htx/internal/frame"
	"github.com/veilproto/htx/internal/xerrors"
)

// controlStreamID is the stream id carried on connection-scoped control
// frames (KEY_UPDATE, PING/PONG) that are not associated with any single
// application stream.
const controlStreamID = 0

type writeRequest struct {
	typ      frame.Type
	streamID uint32
	payload  []byte
	result   chan error
}

// Conn is one HTX connection's stream multiplexer. Per the connection's
// concurrency model it runs exactly two long-lived tasks: one inbound
// reader (owns the RecvState) and one outbound writer (owns the
// SendState), communicating with Stream consumers only through channels.
type Conn struct {
	rw       io.ReadWriter
	send     *frame.SendState
	recv     *frame.RecvState
	isClient bool

	nextID uint32 // atomic; incremented by 2 per locally opened stream

	mu      sync.Mutex
	streams map[uint32]*Stream

	acceptCh chan *Stream
	writeCh  chan writeRequest

	closeCh   chan struct{}
	closeOnce sync.Once

	g    *errgroup.Group
	gctx context.Context
}

// NewConn wraps rw (the live outer connection, already past the HTX
// handshake) with a stream multiplexer keyed by the handshake's derived
// session keys, and starts its reader and writer tasks.
func NewConn(ctx context.Context, rw io.ReadWriter, sendKey, recvKey [32]byte, isClient bool) *Conn {
	sendDir, recvDir := frame.ClientToServer, frame.ServerToClient
	startID := uint32(1)
	if !isClient {
		sendDir, recvDir = frame.ServerToClient, frame.ClientToServer
		startID = 2
	}

	g, gctx := errgroup.WithContext(ctx)
	c := &Conn{
		rw:       rw,
		send:     frame.NewSendState(sendDir, sendKey),
		recv:     frame.NewRecvState(recvDir, recvKey),
		isClient: isClient,
		nextID:   startID,
		streams:  make(map[uint32]*Stream),
		acceptCh: make(chan *Stream, 16),
		writeCh:  make(chan writeRequest, 64),
		closeCh:  make(chan struct{}),
		g:        g,
		gctx:     gctx,
	}

	g.Go(c.writerLoop)
	g.Go(c.readerLoop)
	return c
}

// OpenStream allocates a new locally-opened stream and announces it to the
// peer with STREAM_OPEN.
func (c *Conn) OpenStream(ctx context.Context) (*Stream, error) {
	id := atomic.AddUint32(&c.nextID, 2) - 2

	s := newStream(id, c, Open)
	c.mu.Lock()
	c.streams[id] = s
	c.mu.Unlock()

	if err := c.enqueue(ctx, frame.TypeStreamOpen, id, nil); err != nil {
		c.mu.Lock()
		delete(c.streams, id)
		c.mu.Unlock()
		return nil, err
	}
	return s, nil
}

// AcceptStream blocks until the peer opens a stream, ctx is done, or the
// connection closes.
func (c *Conn) AcceptStream(ctx context.Context) (*Stream, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, errPeerClosed("connection closed")
	case s := <-c.acceptCh:
		return s, nil
	}
}

// Close drains all streams and tears down the reader/writer tasks. It
// waits for both tasks to exit before returning.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closeCh) })

	c.mu.Lock()
	for _, s := range c.streams {
		s.handleRemoteClose()
	}
	c.streams = make(map[uint32]*Stream)
	c.mu.Unlock()

	close(c.writeCh)
	if closer, ok := c.rw.(io.Closer); ok {
		_ = closer.Close()
	}
	c.send.Close()
	c.recv.Close()
	return c.g.Wait()
}

func (c *Conn) sendData(ctx context.Context, id uint32, payload []byte) error {
	return c.enqueue(ctx, frame.TypeData, id, payload)
}

func (c *Conn) sendWindowUpdate(ctx context.Context, id uint32, n int64) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(n))
	return c.enqueue(ctx, frame.TypeWindowUpdate, id, buf[:])
}

func (c *Conn) sendStreamClose(ctx context.Context, id uint32) error {
	return c.enqueue(ctx, frame.TypeStreamClose, id, nil)
}

func (c *Conn) forgetIfClosed(s *Stream) {
	if s.State() != Closed {
		return
	}
	c.mu.Lock()
	delete(c.streams, s.id)
	c.mu.Unlock()
}

func (c *Conn) enqueue(ctx context.Context, typ frame.Type, streamID uint32, payload []byte) error {
	req := writeRequest{typ: typ, streamID: streamID, payload: payload, result: make(chan error, 1)}
	select {
	case c.writeCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closeCh:
		return errPeerClosed("connection closed")
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closeCh:
		return errPeerClosed("connection closed")
	}
}

// writerLoop is the connection's sole outbound task: every frame,
// application or control, is serialized through here so the SendState's
// key and counter are only ever touched by one goroutine.
func (c *Conn) writerLoop() error {
	for req := range c.writeCh {
		err := c.writeFrame(req.typ, req.streamID, req.payload)
		req.result <- err
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) writeFrame(typ frame.Type, streamID uint32, payload []byte) error {
	encoded, needsRekey, err := c.send.Encode(nil, typ, streamID, payload)
	if err != nil {
		return err
	}
	if _, err := c.rw.Write(encoded); err != nil {
		return xerrors.Wrap(xerrors.KindIO, "stream", "write failed", err)
	}
	if needsRekey {
		return c.beginKeyUpdate()
	}
	return nil
}

func (c *Conn) beginKeyUpdate() error {
	nonce, err := c.send.BeginKeyUpdate()
	if err != nil {
		return err
	}
	return c.writeFrame(frame.TypeKeyUpdate, controlStreamID, nonce)
}

// readerLoop is the connection's sole inbound task: it owns the RecvState
// exclusively and dispatches decoded frames to the relevant Stream.
func (c *Conn) readerLoop() error {
	closing := func() bool {
		select {
		case <-c.closeCh:
			return true
		default:
			return false
		}
	}
	for {
		var lenBuf [frame.LengthFieldSize]byte
		if _, err := io.ReadFull(c.rw, lenBuf[:]); err != nil {
			if closing() {
				return nil
			}
			return xerrors.Wrap(xerrors.KindIO, "stream", "read length prefix failed", err)
		}
		n := frame.ParseLength(lenBuf)
		if n < frame.HeaderSize+frame.TagSize || n > frame.MaxFrameLen {
			return xerrors.New(xerrors.KindInvalidFrame, "stream", "invalid frame length")
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(c.rw, raw); err != nil {
			if closing() {
				return nil
			}
			return xerrors.Wrap(xerrors.KindIO, "stream", "read frame body failed", err)
		}

		f, err := c.recv.Decode(raw)
		if err != nil {
			return err
		}
		if err := c.dispatch(f); err != nil {
			return err
		}
	}
}

func (c *Conn) dispatch(f frame.Frame) error {
	switch f.Type {
	case frame.TypeStreamOpen:
		return c.handleStreamOpen(f.StreamID)
	case frame.TypeData:
		return c.handleData(f.StreamID, f.Payload)
	case frame.TypeWindowUpdate:
		return c.handleWindowUpdate(f.StreamID, f.Payload)
	case frame.TypeStreamClose:
		c.handleStreamClose(f.StreamID)
		return nil
	case frame.TypeKeyUpdate:
		return c.recv.Rekey(f.Payload)
	case frame.TypePing:
		return c.enqueue(c.gctx, frame.TypePong, controlStreamID, nil)
	case frame.TypePong:
		return nil
	default:
		return xerrors.New(xerrors.KindInvalidFrame, "stream", "unknown frame type")
	}
}

func (c *Conn) handleStreamOpen(id uint32) error {
	if isLocallyOpened(id, c.isClient) {
		return errInvalidStreamID("peer opened a stream id reserved for this side")
	}
	c.mu.Lock()
	if _, exists := c.streams[id]; exists {
		c.mu.Unlock()
		return errInvalidStreamID("duplicate STREAM_OPEN")
	}
	s := newStream(id, c, Open)
	c.streams[id] = s
	c.mu.Unlock()

	select {
	case c.acceptCh <- s:
		return nil
	case <-c.closeCh:
		return errPeerClosed("connection closed")
	}
}

func (c *Conn) handleData(id uint32, payload []byte) error {
	c.mu.Lock()
	s, ok := c.streams[id]
	c.mu.Unlock()
	if !ok {
		return nil // stream already closed locally; drop trailing data
	}
	s.deliver(payload)
	return nil
}

func (c *Conn) handleWindowUpdate(id uint32, payload []byte) error {
	if len(payload) != 4 {
		return errInvalidStreamID("malformed WINDOW_UPDATE payload")
	}
	c.mu.Lock()
	s, ok := c.streams[id]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	s.grantCredit(int64(binary.BigEndian.Uint32(payload)))
	return nil
}

func (c *Conn) handleStreamClose(id uint32) {
	c.mu.Lock()
	s, ok := c.streams[id]
	if ok && s.State() == HalfClosedLocal {
		delete(c.streams, id)
	}
	c.mu.Unlock()
	if ok {
		s.handleRemoteClose()
	}
}
