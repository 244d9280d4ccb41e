package handshake

import (
	"context"
	"net"

	utls "github.com/enetx/utls"

	"github.com/veilproto/htx/internal/fingerprint"
	"github.com/veilproto/htx/internal/htxcrypto"
	"github.com/veilproto/htx/internal/xerrors"
)

// exporterLabel is the fixed, public label used for the TLS exporter that
// binds the inner channel to the outer connection's negotiated secrets.
// The per-connection binding to a specific fingerprint comes from mixing
// template_id into the exporter's context, not from this label.
const exporterLabel = "htx inner bootstrap"

const exporterLen = 32

// DialOuter performs the outer TLS 1.3 handshake against hostPort,
// mirroring the Template calib returns for that origin, and derives the
// bootstrap key the inner handshake seals its three messages under. The
// returned net.Conn is live and positioned immediately after the TLS
// handshake; callers run the inner exchange over it next.
func DialOuter(ctx context.Context, calib *fingerprint.Calibrator, profile utls.ClientHelloID, hostPort string) (net.Conn, [32]byte, error) {
	var bootstrapKey [32]byte

	tmpl, err := calib.Get(ctx, hostPort)
	if err != nil {
		return nil, bootstrapKey, err
	}

	var d net.Dialer
	rawConn, err := d.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return nil, bootstrapKey, xerrors.Wrap(xerrors.KindIO, "handshake", "outer dial failed", err)
	}

	host, _, splitErr := net.SplitHostPort(hostPort)
	if splitErr != nil {
		host = hostPort
	}

	spec, err := utls.UTLSIdToSpec(profile)
	if err != nil {
		_ = rawConn.Close()
		return nil, bootstrapKey, xerrors.Wrap(xerrors.KindHandshakeFailed, "handshake", "unknown profile", err)
	}

	conn := utls.UClient(rawConn, &utls.Config{ServerName: host}, utls.HelloCustom)
	if err := conn.ApplyPreset(&spec); err != nil {
		_ = conn.Close()
		return nil, bootstrapKey, xerrors.Wrap(xerrors.KindHandshakeFailed, "handshake", "apply preset failed", err)
	}

	if err := conn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		calib.Invalidate(hostPort)
		return nil, bootstrapKey, xerrors.Wrap(xerrors.KindHandshakeFailed, "handshake", "outer handshake failed", err)
	}

	exporter, err := conn.ExportKeyingMaterial(exporterLabel, tmpl.TemplateID[:], exporterLen)
	if err != nil {
		_ = conn.Close()
		return nil, bootstrapKey, xerrors.Wrap(xerrors.KindHandshakeFailed, "handshake", "exporter unavailable", err)
	}

	key, err := deriveBootstrapKey(exporter, tmpl.TemplateID)
	if err != nil {
		_ = conn.Close()
		return nil, bootstrapKey, err
	}
	bootstrapKey = key

	return conn, bootstrapKey, nil
}

// deriveBootstrapKey turns the outer connection's exported keying material
// into the key the inner handshake's three messages are sealed under,
// keyed additionally by template_id so two connections that happen to
// export the same raw material under different mirrored fingerprints still
// derive different bootstrap keys.
func deriveBootstrapKey(exporter []byte, templateID [32]byte) ([32]byte, error) {
	var key [32]byte
	out, err := htxcrypto.HKDFExpand(exporter, templateID[:], []byte("htx bootstrap"), 32)
	if err != nil {
		return key, err
	}
	copy(key[:], out)
	return key, nil
}
