package fingerprint

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	utls "github.com/enetx/utls"

	"github.com/veilproto/htx/internal/xerrors"
)

// TTL is how long a calibrated Template is trusted before it must be
// refreshed by a new probe.
const TTL = 24 * time.Hour

// Calibrator performs TLS 1.3 probes against decoy origins and caches the
// resulting Templates. The handshake package takes it as a concrete
// *Calibrator; no probe interface is declared.
type Calibrator struct {
	dialer  net.Dialer
	timeout time.Duration
	profile utls.ClientHelloID
	cache   *Cache
}

// New returns a Calibrator that mimics the given uTLS ClientHelloID (the
// "pinned decoy profile") when probing, backed by a fresh Cache.
func New(profile utls.ClientHelloID, timeout time.Duration) *Calibrator {
	return &Calibrator{timeout: timeout, profile: profile, cache: NewCache()}
}

// Get returns a cached, still-fresh Template for hostPort if one exists,
// or performs a new probe and caches the result otherwise.
func (c *Calibrator) Get(ctx context.Context, hostPort string) (*Template, error) {
	if t, ok := c.cache.Load(hostPort); ok {
		return t, nil
	}
	return c.Probe(ctx, hostPort)
}

// Probe dials hostPort, performs a real TLS 1.3 handshake using a
// ClientHelloSpec derived from the pinned profile, and assembles a Template
// from the ordered fields of that spec. A failed dial or handshake surfaces
// as CalibrationFailed; the selector must then choose a different decoy.
func (c *Calibrator) Probe(ctx context.Context, hostPort string) (*Template, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rawConn, err := c.dialer.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindCalibrationFailed, "fingerprint", "dial failed", err)
	}

	host, _, splitErr := net.SplitHostPort(hostPort)
	if splitErr != nil {
		host = hostPort
	}

	spec, err := utls.UTLSIdToSpec(c.profile)
	if err != nil {
		_ = rawConn.Close()
		return nil, xerrors.Wrap(xerrors.KindCalibrationFailed, "fingerprint", "unknown profile", err)
	}

	conn := utls.UClient(rawConn, &utls.Config{ServerName: host, InsecureSkipVerify: true}, utls.HelloCustom)
	if err := conn.ApplyPreset(&spec); err != nil {
		_ = conn.Close()
		return nil, xerrors.Wrap(xerrors.KindCalibrationFailed, "fingerprint", "apply preset failed", err)
	}

	if err := conn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		c.cache.Invalidate(hostPort)
		return nil, xerrors.Wrap(xerrors.KindCalibrationFailed, "fingerprint", "handshake failed", err)
	}
	defer conn.Close()

	state := conn.ConnectionState()

	t := &Template{
		TemplateSchema:      TemplateSchema,
		TLSVersion:          tlsVersionOf(state),
		CipherSuites:        spec.CipherSuites,
		Extensions:          orderedExtensionIDs(&spec),
		NamedGroups:         namedGroups(&spec),
		ECPointFormats:      ecPointFormats(&spec),
		SignatureAlgorithms: signatureAlgorithms(&spec),
		ALPN:                alpnProtocols(&spec),
		CapturedAt:          time.Now(),
		Origin:              host,
	}
	t.ComputeID()

	c.cache.Store(hostPort, t)
	return t, nil
}

// Invalidate drops any cached Template for hostPort, called by the
// handshake layer when a subsequent mirroring attempt is rejected by the
// origin (the cached Template no longer reflects reality).
func (c *Calibrator) Invalidate(hostPort string) { c.cache.Invalidate(hostPort) }

func tlsVersionOf(state utls.ConnectionState) uint16 {
	switch state.Version {
	case tls.VersionTLS13:
		return tls.VersionTLS13
	case tls.VersionTLS12:
		return tls.VersionTLS12
	default:
		return state.Version
	}
}
