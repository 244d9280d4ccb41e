package selector

import (
	"encoding/hex"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/veilproto/htx/internal/catalog"
	"github.com/veilproto/htx/internal/xerrors"
)

// DeprioritizeWindow is how long a decoy that just failed calibration or
// handshake is excluded from selection, unless it is the only candidate.
const DeprioritizeWindow = 5 * time.Minute

// Result is a selector decision: the chosen decoy plus the connection
// hints the handshake layer needs.
type Result struct {
	Entry      catalog.DecoyEntry
	DecoyHost  string
	DecoyPort  uint16
	ALPNHints  []string
	EdgeStatic [32]byte
}

// Selector picks a decoy DecoyEntry for a destination hostname from the
// active catalog, tracking recent failures for deprioritization.
type Selector struct {
	state *catalog.State

	mu      sync.Mutex
	failed  map[string]time.Time // decoy id -> last failure time
}

// New returns a Selector reading decoys from state.
func New(state *catalog.State) *Selector {
	return &Selector{state: state, failed: make(map[string]time.Time)}
}

// RecordFailure marks decoyID as recently failed, deprioritizing it for
// DeprioritizeWindow.
func (s *Selector) RecordFailure(decoyID string) {
	s.mu.Lock()
	s.failed[decoyID] = time.Now()
	s.mu.Unlock()
}

// AllDeprioritized reports whether every decoy in the active catalog has
// failed recently, the condition the status endpoint surfaces as degraded.
func (s *Selector) AllDeprioritized() bool {
	active := s.state.Active()
	if active == nil || len(active.Doc.Entries) == 0 {
		return false
	}
	now := time.Now()
	for _, e := range active.Doc.Entries {
		if !s.isDeprioritized(e.ID, now) {
			return false
		}
	}
	return true
}

func (s *Selector) isDeprioritized(decoyID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.failed[decoyID]
	if !ok {
		return false
	}
	if now.Sub(t) >= DeprioritizeWindow {
		delete(s.failed, decoyID)
		return false
	}
	return true
}

// Select chooses a decoy for destHost per §4.8: longest-specific
// host_patterns match wins, wildcard "*" last; ties broken by weighted
// random; a decoy that failed recently is excluded unless it is the only
// match at the winning specificity.
func (s *Selector) Select(destHost string) (*Result, error) {
	active := s.state.Active()
	if active == nil {
		return nil, xerrors.New(xerrors.KindNoDecoyAvailable, "selector", "no active catalog")
	}

	host := normalizeHost(destHost)
	now := time.Now()

	bestSpec := -1
	var matches []catalog.DecoyEntry
	for _, e := range active.Doc.Entries {
		spec, ok := bestSpecificity(e.HostPatterns, host)
		if !ok {
			continue
		}
		switch {
		case spec > bestSpec:
			bestSpec = spec
			matches = []catalog.DecoyEntry{e}
		case spec == bestSpec:
			matches = append(matches, e)
		}
	}
	if len(matches) == 0 {
		return nil, xerrors.New(xerrors.KindNoDecoyAvailable, "selector", "no decoy pattern matches destination")
	}

	eligible := make([]catalog.DecoyEntry, 0, len(matches))
	for _, e := range matches {
		if !s.isDeprioritized(e.ID, now) {
			eligible = append(eligible, e)
		}
	}
	if len(eligible) == 0 {
		eligible = matches // all deprioritized: fall back to the full match set
	}

	chosen := weightedPick(eligible)
	if len(chosen.Ports) == 0 {
		return nil, xerrors.New(xerrors.KindNoDecoyAvailable, "selector", "decoy entry has no ports")
	}

	edgeStatic, err := decodeEdgeStatic(chosen.EdgeStaticKeyHex)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindNoDecoyAvailable, "selector", "decoy has malformed edge key", err)
	}

	return &Result{
		Entry:      chosen,
		DecoyHost:  chosen.Host,
		DecoyPort:  chosen.Ports[0],
		ALPNHints:  chosen.ALPN,
		EdgeStatic: edgeStatic,
	}, nil
}

func decodeEdgeStatic(hexKey string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, xerrors.New(xerrors.KindNoDecoyAvailable, "selector", "edge key has wrong length")
	}
	copy(out[:], raw)
	return out, nil
}

func weightedPick(entries []catalog.DecoyEntry) catalog.DecoyEntry {
	var total uint64
	for _, e := range entries {
		w := uint64(e.Weight)
		if w == 0 {
			w = 1
		}
		total += w
	}
	if total == 0 {
		return entries[0]
	}

	pick := rand.Uint64N(total)
	var cum uint64
	for _, e := range entries {
		w := uint64(e.Weight)
		if w == 0 {
			w = 1
		}
		cum += w
		if pick < cum {
			return e
		}
	}
	return entries[len(entries)-1]
}
