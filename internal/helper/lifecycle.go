package helper

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// drainTimeout is how long graceful shutdown waits for in-flight streams
// to close on their own before the helper aborts them, per §4.9.
const drainTimeout = 5 * time.Second

// updateInterval is the catalog updater's baseline polling cadence absent
// a forced /update trigger or an active backoff.
const updateInterval = 10 * time.Minute

// Run starts the SOCKS5 ingress, the status server and the background
// catalog updater, and blocks until ctx is cancelled. On cancellation it
// stops accepting new work, drains active streams for up to drainTimeout,
// and returns once every component has shut down.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	socksSrv := newSocksServer(o)
	statusSrv := newStatusServer(o, o.cfg.StatusBind, o.cfg.StatusPort)

	g.Go(func() error { return socksSrv.Serve(gctx) })
	g.Go(func() error { return statusSrv.Serve(gctx) })
	g.Go(func() error { return o.runUpdateLoop(gctx) })

	err := g.Wait()
	o.drain(drainTimeout)
	return err
}

// runUpdateLoop runs the catalog updater on a timer that honors its own
// exponential backoff after a failed cycle, independent of explicit
// /update triggers served by the status endpoint.
func (o *Orchestrator) runUpdateLoop(ctx context.Context) error {
	for {
		delay := updateInterval
		if d := o.updater.NextDelay(); d > delay {
			delay = d
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		result := o.updater.RunOnce(ctx)
		o.recordUpdate(result)
	}
}
