// Package helper implements the local single-host process that terminates
// a SOCKS5 listener, chooses decoys per destination, drives the HTX
// transport end to end, and exposes the status/control surface of §6.
package helper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	utls "github.com/enetx/utls"

	"github.com/veilproto/htx/internal/catalog"
	"github.com/veilproto/htx/internal/config"
	"github.com/veilproto/htx/internal/fingerprint"
	"github.com/veilproto/htx/internal/handshake"
	"github.com/veilproto/htx/internal/logging"
	"github.com/veilproto/htx/internal/selector"
	"github.com/veilproto/htx/internal/stream"
	"github.com/veilproto/htx/internal/xerrors"
)

// runState is the coarse health the status endpoint reports, per §6's
// `state ∈ {starting, connected, degraded, offline}`.
type runState string

const (
	stateStarting  runState = "starting"
	stateConnected runState = "connected"
	stateDegraded  runState = "degraded"
	stateOffline   runState = "offline"
)

// handshakeDeadline and socksNegotiationDeadline are the two fixed
// deadlines §5 assigns to the helper's per-connection suspension points.
const (
	handshakeDeadline        = 10 * time.Second
	socksNegotiationDeadline = 5 * time.Second
)

// Orchestrator wires together the selector, calibrator, handshake and
// multiplexer into the single control flow described by §4.9: SOCKS
// CONNECT in, decoy chosen, HTX connection dialed, inner stream opened,
// CONNECT prelude sent, bytes relayed.
type Orchestrator struct {
	cfg      config.Config
	log      *slog.Logger
	calib    *fingerprint.Calibrator
	sel      *selector.Selector
	catalog  *catalog.State
	updater  *catalog.Updater
	identity handshake.StaticIdentity
	profile  utls.ClientHelloID
	seedURL  string

	mu            sync.Mutex
	state         runState
	lastTarget    string
	lastDecoy     string
	everConnected bool
	lastUpdate    catalog.Result

	activeMu sync.Mutex
	active   map[*streamNetConn]struct{}
}

// New builds an Orchestrator. identity is the helper's persistent inner
// handshake keypair; profile is the uTLS ClientHelloID the calibrator and
// handshake layer mirror against every decoy.
func New(
	cfg config.Config,
	calib *fingerprint.Calibrator,
	sel *selector.Selector,
	catalogState *catalog.State,
	updater *catalog.Updater,
	identity handshake.StaticIdentity,
	profile utls.ClientHelloID,
	seedURL string,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		log:      logging.New("helper", slog.LevelInfo),
		calib:    calib,
		sel:      sel,
		catalog:  catalogState,
		updater:  updater,
		identity: identity,
		profile:  profile,
		seedURL:  seedURL,
		state:    stateStarting,
		active:   make(map[*streamNetConn]struct{}),
	}
}

func (o *Orchestrator) trackActive(c *streamNetConn) {
	o.activeMu.Lock()
	o.active[c] = struct{}{}
	o.activeMu.Unlock()
}

func (o *Orchestrator) untrackActive(c *streamNetConn) {
	o.activeMu.Lock()
	delete(o.active, c)
	o.activeMu.Unlock()
}

// drain waits up to timeout for every currently tracked stream to close on
// its own, then forcibly closes whatever is left, per §4.9's "graceful
// shutdown... drains active streams for up to 5 s before aborting".
func (o *Orchestrator) drain(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		o.activeMu.Lock()
		n := len(o.active)
		o.activeMu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	for c := range o.active {
		_ = c.Close()
	}
}

// proxyDial is the SOCKS5 server's CONNECT hook: it runs the full decoy
// selection → calibration → handshake → inner-stream → CONNECT-prelude
// sequence and returns a net.Conn the SOCKS library relays bytes over.
func (o *Orchestrator) proxyDial(ctx context.Context, network, addr string) (net.Conn, error) {
	if network != "tcp" {
		return nil, xerrors.New(xerrors.KindInvalidFrame, "helper", "only CONNECT over tcp is supported")
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInvalidFrame, "helper", "malformed CONNECT target", err)
	}

	res, err := o.sel.Select(host)
	if err != nil {
		o.log.Warn("no decoy available", "target", host, "error", err)
		return nil, err
	}
	decoyHostPort := fmt.Sprintf("%s:%d", res.DecoyHost, res.DecoyPort)

	hctx, cancel := context.WithTimeout(ctx, handshakeDeadline)
	defer cancel()

	init := &handshake.Initiator{Identity: o.identity, RemoteStatic: res.EdgeStatic}
	outer, result, err := init.Dial(hctx, o.calib, o.profile, decoyHostPort)
	if err != nil {
		o.sel.RecordFailure(res.Entry.ID)
		o.log.Warn("handshake failed", "decoy", decoyHostPort, "error", err)
		return nil, err
	}

	mux := stream.NewConn(ctx, outer, result.Keys.ClientToServer, result.Keys.ServerToClient, true)
	result.Keys.Zero()

	st, err := mux.OpenStream(ctx)
	if err != nil {
		_ = mux.Close()
		o.sel.RecordFailure(res.Entry.ID)
		return nil, err
	}

	conn := newStreamNetConn(ctx, st, mux, decoyHostPort)
	leftover, err := sendConnectPrelude(conn, addr)
	if err != nil {
		_ = conn.Close()
		o.sel.RecordFailure(res.Entry.ID)
		return nil, err
	}
	conn.seed(leftover)

	o.trackActive(conn)
	conn.onClose = func() { o.untrackActive(conn) }

	o.recordSuccess(addr, res)
	return conn, nil
}

func (o *Orchestrator) recordSuccess(target string, res *selector.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastTarget = target
	o.lastDecoy = res.DecoyHost
	o.everConnected = true
	o.state = stateConnected
}

func (o *Orchestrator) recordUpdate(r catalog.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastUpdate = r
}

// snapshot returns the fields the status endpoint renders, recomputing the
// coarse state from current catalog/selector health each call rather than
// caching it, per §6's "fields are additive only" and §9's "no hidden
// ambient state" notes.
func (o *Orchestrator) snapshot() statusSnapshot {
	o.mu.Lock()
	lastTarget, lastDecoy, everConnected, lastUpdate := o.lastTarget, o.lastDecoy, o.everConnected, o.lastUpdate
	o.mu.Unlock()

	active := o.catalog.Active()
	state := stateOffline
	var decoyCount int
	var catalogVersion uint64
	var catalogExpiresAt time.Time
	var catalogSource string

	if active != nil {
		decoyCount = len(active.Doc.Entries)
		catalogVersion = active.Doc.CatalogVersion
		catalogExpiresAt = active.Doc.ExpiresAt
		catalogSource = active.Source

		now := time.Now()
		switch {
		case everConnected:
			state = stateConnected
		case active.Expired(now) && active.UsableWithinGrace(now):
			state = stateDegraded
		case o.sel.AllDeprioritized():
			state = stateDegraded
		default:
			state = stateStarting
		}
	}

	return statusSnapshot{
		Mode:             "socks5-client",
		State:            string(state),
		DecoyCount:       decoyCount,
		CatalogVersion:   catalogVersion,
		CatalogExpiresAt: catalogExpiresAt,
		CatalogSource:    catalogSource,
		LastTarget:       lastTarget,
		LastDecoy:        lastDecoy,
		LastUpdate:       lastUpdate,
		SeedURL:          o.seedURL,
		ConfigMode:       configModeOf(o.cfg),
	}
}

func configModeOf(cfg config.Config) string {
	if cfg.CatalogAllowUnsigned || cfg.InnerPlaintext {
		return "dev"
	}
	return "release"
}
