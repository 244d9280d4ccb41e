// Package stream implements the HTX stream multiplexer: many logically
// independent byte streams carried over one HTX connection, each with its
// own flow-control window, layered on top of internal/frame.
package stream

import "github.com/veilproto/htx/internal/xerrors"

// InitialWindow is the number of bytes of send credit a newly opened
// stream starts with in each direction.
const InitialWindow = 256 * 1024

// windowUpdateThreshold is the fraction of the window that must be
// consumed before the receiver emits a WINDOW_UPDATE.
const windowUpdateThreshold = InitialWindow / 2

// State is a stream's position in its open/close lifecycle.
type State uint8

const (
	Idle State = iota
	Open
	HalfClosedLocal
	HalfClosedRemote
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Open:
		return "Open"
	case HalfClosedLocal:
		return "HalfClosedLocal"
	case HalfClosedRemote:
		return "HalfClosedRemote"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// isLocallyOpened reports whether id would have been opened by the side
// identified by isClient (odd ids are initiator-opened, even responder-
// opened).
func isLocallyOpened(id uint32, isClient bool) bool {
	odd := id%2 == 1
	return odd == isClient
}

func errInvalidStreamID(detail string) error {
	return xerrors.New(xerrors.KindInvalidFrame, "stream", detail)
}

func errPeerClosed(detail string) error {
	return xerrors.New(xerrors.KindPeerClosed, "stream", detail)
}
