package stream

import (
	"context"
	"sync"
)

// maxChunk bounds how much of one Write call is packed into a single DATA
// frame, well under frame.MaxFrameLen even after AEAD expansion.
const maxChunk = 16 * 1024

// Stream is one flow-controlled, ordered byte stream multiplexed over a
// Conn. The zero value is not usable; streams are created by
// Conn.OpenStream or delivered by Conn.AcceptStream.
type Stream struct {
	id   uint32
	conn *Conn

	mu    sync.Mutex
	state State

	sendCredit *creditWindow // bytes we are allowed to send, granted by the peer

	recvConsumed int64 // bytes read by the application since the last WINDOW_UPDATE we sent

	incoming  chan []byte
	pending   []byte // unread tail of the most recently dequeued chunk
	closeOnce sync.Once
}

func newStream(id uint32, conn *Conn, state State) *Stream {
	return &Stream{
		id:         id,
		conn:       conn,
		state:      state,
		sendCredit: newCreditWindow(InitialWindow),
		incoming:   make(chan []byte, 32),
	}
}

// ID returns the stream's wire identifier.
func (s *Stream) ID() uint32 { return s.id }

// State returns the stream's current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Write sends p on the stream, blocking while flow-control credit is
// unavailable, and returns once every byte has been handed to the
// connection's writer task.
func (s *Stream) Write(ctx context.Context, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		want := len(p) - written
		if want > maxChunk {
			want = maxChunk
		}
		got, err := s.sendCredit.Consume(ctx, int64(want))
		if err != nil {
			return written, err
		}
		chunk := p[written : written+int(got)]
		if err := s.conn.sendData(ctx, s.id, chunk); err != nil {
			return written, err
		}
		written += int(got)
	}
	return written, nil
}

// Read returns the next chunk of data received on the stream, blocking
// until data arrives, the stream is closed by the peer, or ctx is done.
func (s *Stream) Read(ctx context.Context) ([]byte, error) {
	if len(s.pending) > 0 {
		out := s.pending
		s.pending = nil
		s.accountRead(ctx, len(out))
		return out, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case chunk, ok := <-s.incoming:
		if !ok {
			return nil, errPeerClosed("stream closed by peer")
		}
		s.accountRead(ctx, len(chunk))
		return chunk, nil
	}
}

func (s *Stream) accountRead(ctx context.Context, n int) {
	s.mu.Lock()
	s.recvConsumed += int64(n)
	consumed := s.recvConsumed
	s.mu.Unlock()

	if consumed >= windowUpdateThreshold {
		s.mu.Lock()
		s.recvConsumed = 0
		s.mu.Unlock()
		_ = s.conn.sendWindowUpdate(ctx, s.id, consumed)
	}
}

// deliver is called by Conn's reader task to hand one DATA frame's payload
// to the stream's consumer.
func (s *Stream) deliver(payload []byte) {
	s.incoming <- payload
}

// grantCredit is called by Conn's reader task on receipt of a
// WINDOW_UPDATE frame for this stream.
func (s *Stream) grantCredit(n int64) { s.sendCredit.Add(n) }

// handleRemoteClose transitions the stream on receipt of STREAM_CLOSE.
func (s *Stream) handleRemoteClose() {
	s.mu.Lock()
	switch s.state {
	case HalfClosedLocal:
		s.state = Closed
	default:
		s.state = HalfClosedRemote
	}
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.incoming) })
	s.sendCredit.Close()
}

// Close enqueues STREAM_CLOSE and marks the stream closed for writes. It
// does not wait for the peer's own close.
func (s *Stream) Close(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Closed, HalfClosedLocal:
		s.mu.Unlock()
		return nil
	case HalfClosedRemote:
		s.state = Closed
	default:
		s.state = HalfClosedLocal
	}
	s.mu.Unlock()

	s.conn.forgetIfClosed(s)
	return s.conn.sendStreamClose(ctx, s.id)
}
