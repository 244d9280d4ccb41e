package handshake

import (
	"context"
	"net"

	utls "github.com/enetx/utls"

	"github.com/veilproto/htx/internal/fingerprint"
)

// Dial performs the full HTX handshake: outer TLS mirroring of hostPort's
// calibrated Template followed by the three-message inner exchange. On
// success it returns the live net.Conn (positioned just past the third
// inner message, ready for the multiplexer to take over) and the derived
// session keys.
func (in *Initiator) Dial(ctx context.Context, calib *fingerprint.Calibrator, profile utls.ClientHelloID, hostPort string) (net.Conn, *Result, error) {
	conn, bootstrapKey, err := DialOuter(ctx, calib, profile, hostPort)
	if err != nil {
		return nil, nil, err
	}

	result, state, err := in.RunInner(ctx, conn, bootstrapKey)
	if err != nil {
		_ = conn.Close()
		if state == OuterFailed {
			calib.Invalidate(hostPort)
		}
		return nil, nil, err
	}
	return conn, result, nil
}
