package catalog

import (
	"sync/atomic"
	"time"

	"github.com/veilproto/htx/internal/xerrors"
)

// State is the read-mostly handle the rest of the helper holds onto.
// Readers call Active and get back a snapshot reference that stays valid
// even after the updater publishes a new one; the updater swaps the
// pointer atomically and never mutates a published Catalog in place.
type State struct {
	active   atomic.Pointer[Catalog]
	previous atomic.Pointer[Catalog]
	verifier *Verifier
	bundled  Wire
}

// NewState constructs a State with the given verifier and the bundled
// fallback catalog compiled into the binary.
func NewState(verifier *Verifier, bundled Wire) *State {
	return &State{verifier: verifier, bundled: bundled}
}

// Active returns the current snapshot, or nil if the helper has not yet
// completed startup load.
func (s *State) Active() *Catalog { return s.active.Load() }

// Previous returns the snapshot retained when Active was last replaced.
func (s *State) Previous() *Catalog { return s.previous.Load() }

// Startup implements §4.7's startup sequence: prefer a valid cached
// catalog over the bundled one, falling back to bundled if the cache is
// missing or fails verification, and activating whichever of the two
// valid candidates is fresher.
func (s *State) Startup(store *Store, now time.Time) error {
	var candidates []*Catalog

	if cachedWire, err := store.LoadCurrent(); err == nil && cachedWire != nil {
		if doc, verr := s.verifier.Verify(cachedWire); verr == nil && now.Before(doc.ExpiresAt.Add(GraceWindow)) {
			candidates = append(candidates, &Catalog{Doc: *doc, Source: "cached"})
		}
	}

	if doc, err := s.verifier.Verify(&s.bundled); err == nil {
		candidates = append(candidates, &Catalog{Doc: *doc, Source: "bundled"})
	}

	if len(candidates) == 0 {
		return xerrors.New(xerrors.KindNoDecoyAvailable, "catalog", "no valid catalog (cached or bundled) available at startup")
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Doc.CatalogVersion > best.Doc.CatalogVersion {
			best = c
		}
	}
	s.active.Store(best)
	return nil
}

// tryPromote atomically promotes candidate to active if it is newer and
// unexpired, demoting the previous active to previous.
func (s *State) tryPromote(candidate *Catalog, now time.Time) error {
	cur := s.active.Load()
	var curDoc *Document
	if cur != nil {
		curDoc = &cur.Doc
	}
	if err := CheckAcceptable(&candidate.Doc, curDoc, now); err != nil {
		return err
	}
	if cur != nil {
		s.previous.Store(cur)
	}
	s.active.Store(candidate)
	return nil
}
