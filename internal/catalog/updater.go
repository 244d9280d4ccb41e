package catalog

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/veilproto/htx/internal/xerrors"
)

// maxConcurrentMirrorFetches bounds how many update_urls are fetched in
// parallel during one update cycle.
const maxConcurrentMirrorFetches = 4

const (
	minBackoff = 15 * time.Second
	maxBackoff = 30 * time.Minute
)

// Result is the outcome of one update cycle, matching the §6 `/update`
// response shape exactly: {updated, from, version, error?, checked_at_ms}.
type Result struct {
	Updated     bool   `json:"updated"`
	From        string `json:"from,omitempty"`
	Version     uint64 `json:"version,omitempty"`
	Error       string `json:"error,omitempty"`
	CheckedAtMs int64  `json:"checked_at_ms"`
}

func newResult(now time.Time) Result { return Result{CheckedAtMs: now.UnixMilli()} }

// Updater periodically (and on explicit trigger) walks the active
// catalog's update_urls looking for a fresher, valid catalog.
type Updater struct {
	state   *State
	store   *Store
	fetcher *Fetcher

	backoff time.Duration
}

// NewUpdater returns an Updater ready to run update cycles against state.
func NewUpdater(state *State, store *Store, fetcher *Fetcher) *Updater {
	return &Updater{state: state, store: store, fetcher: fetcher, backoff: minBackoff}
}

// RunOnce fetches every update URL from the active catalog concurrently
// (bounded parallelism), verifies each candidate, and promotes the first
// one that is newer, unexpired and signed by a pinned publisher key. On
// total failure it grows the backoff for the caller's next retry and
// leaves the active catalog untouched.
func (u *Updater) RunOnce(ctx context.Context) Result {
	now := time.Now()
	active := u.state.Active()
	if active == nil {
		r := newResult(now)
		r.Error = "no active catalog to update from"
		return r
	}

	urls := active.Doc.UpdateURLs
	if len(urls) == 0 {
		urls = active.Doc.SeedFallbackURLs
	}

	type candidate struct {
		url string
		w   *Wire
		err error
	}

	results := make([]candidate, len(urls))
	sem := semaphore.NewWeighted(maxConcurrentMirrorFetches)
	g, gctx := errgroup.WithContext(ctx)

	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i] = candidate{url: url, err: err}
				return nil
			}
			defer sem.Release(1)

			w, err := u.fetcher.Fetch(gctx, url)
			results[i] = candidate{url: url, w: w, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var lastErr error
	for _, r := range results {
		if r.err != nil || r.w == nil {
			lastErr = r.err
			continue
		}
		doc, err := u.state.verifier.Verify(r.w)
		if err != nil {
			lastErr = err
			continue
		}
		cat := &Catalog{Doc: *doc, Source: "remote"}
		if err := u.state.tryPromote(cat, now); err != nil {
			lastErr = err
			continue
		}
		if err := u.store.Save(r.w); err != nil {
			res := newResult(now)
			res.Error = err.Error()
			return res
		}
		u.backoff = minBackoff
		res := newResult(now)
		res.Updated = true
		res.From = r.url
		res.Version = doc.CatalogVersion
		return res
	}

	u.backoff *= 2
	if u.backoff > maxBackoff {
		u.backoff = maxBackoff
	}
	res := newResult(now)
	res.Error = resultErrorString(lastErr)
	return res
}

// resultErrorString reports the structured Kind name when lastErr is an
// *xerrors.Error (e.g. "VersionRegression"), matching the version-regression
// example in §8, or a generic message when no mirror returned a usable
// candidate at all.
func resultErrorString(lastErr error) string {
	if lastErr == nil {
		return "all mirrors failed"
	}
	if xe, ok := lastErr.(*xerrors.Error); ok {
		return xe.Kind.String()
	}
	return lastErr.Error()
}

// NextDelay returns how long the caller should wait before the next
// RunOnce, following the exponential-backoff-capped-at-30-min schedule.
func (u *Updater) NextDelay() time.Duration { return u.backoff }
