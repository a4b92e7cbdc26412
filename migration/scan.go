package migration

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/undermoon-go/undermoon/cmn"
	"github.com/undermoon-go/undermoon/slot"
	"github.com/undermoon-go/undermoon/stats"
)

// scanEngine is C3: the producer/consumer pair that moves keys for one
// in-flight migration. Grounded on scan_task.rs's ScanMigrationTask (a
// cursor-paged producer feeding a forwarding consumer over a bounded
// channel) and on reb/global.go's jogger shape, replacing the teacher's raw
// sync.WaitGroup/manual error channel with golang.org/x/sync/errgroup so the
// first failure on either side cancels the other and is the one error
// returned to the caller.
type scanEngine struct {
	cursor  ScanCursor
	dst     Destination
	r       slot.Range
	rate    int
	depth   int
	backoff backoffConfig
	stats   *stats.MigrationStats
}

type backoffConfig struct {
	min         time.Duration
	max         time.Duration
	maxAttempts int
}

func newScanEngine(cursor ScanCursor, dst Destination, r slot.Range, cfg *cmn.Config, st *stats.MigrationStats) *scanEngine {
	return &scanEngine{
		cursor: cursor,
		dst:    dst,
		r:      r,
		rate:   cfg.Migration.ScanRate,
		depth:  cfg.Migration.ScanChannelDepth,
		backoff: backoffConfig{
			min:         cfg.Migration.ScanBackoffMin,
			max:         cfg.Migration.ScanBackoffMax,
			maxAttempts: cfg.Migration.ScanBackoffMaxAttempts,
		},
		stats: st,
	}
}

// retry runs op, retrying on error with exponential backoff bounded by
// [backoff.min, backoff.max]. Every attempt past the first counts against
// stats as a retry. Once backoff.maxAttempts is exhausted, the last error is
// wrapped as a Timeout and returned, failing the engine per §4.3 ("beyond
// [the ceiling] it fails the task") rather than retrying forever.
func (e *scanEngine) retry(ctx context.Context, op func() error) error {
	wait := e.backoff.min
	var lastErr error
	for attempt := 1; attempt <= e.backoff.maxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt == e.backoff.maxAttempts {
			break
		}
		e.stats.AddRetry()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > e.backoff.max {
			wait = e.backoff.max
		}
	}
	return cmn.NewTimeout("scan: giving up after %d attempts: %v", e.backoff.maxAttempts, lastErr)
}

// run drives one full, non-restartable pass over the slot range: a producer
// scans pages of keys and forwards the ones whose slot lies in r over a
// bounded channel, a consumer restores each one at the destination. run
// returns once the producer has exhausted the keyspace (cursor reaches 0)
// and the consumer has drained the channel, or as soon as either side
// errors, whichever comes first.
func (e *scanEngine) run(ctx context.Context) error {
	records := make(chan Record, e.depth)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(records)
		return e.produce(gctx, records)
	})
	g.Go(func() error {
		return e.consume(gctx, records)
	})
	return g.Wait()
}

// produce scans the keyspace page by page, filtering each key by slot
// membership before fetching its value, and sends the result on records.
// Both the page scan and the per-key fetch retry independently through e.retry
// with exponential backoff bounded by [backoff.min, backoff.max]; a partially-
// applied cursor step is not itself a correctness problem (Scan is idempotent
// at a given cursor), but per §4.3 either side exhausting backoff.maxAttempts
// fails the whole task rather than looping forever.
func (e *scanEngine) produce(ctx context.Context, records chan<- Record) error {
	var cursor uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var next uint64
		var keys []string
		if err := e.retry(ctx, func() error {
			var scanErr error
			next, keys, scanErr = e.cursor.Scan(ctx, cursor, e.rate)
			return scanErr
		}); err != nil {
			return cmn.WrapTransport(cmn.KindRedisClient, err, "scan: page at cursor %d", cursor)
		}

		for _, key := range keys {
			if !slot.ContainsSlot(slot.Set{e.r}, slot.HashSlot(key)) {
				continue
			}
			var rec Record
			if err := e.retry(ctx, func() error {
				var fetchErr error
				rec, fetchErr = e.cursor.Fetch(ctx, key)
				return fetchErr
			}); err != nil {
				return cmn.WrapTransport(cmn.KindRedisClient, err, "scan: fetch key %q", key)
			}
			e.stats.AddKeyScanned()
			select {
			case records <- rec:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// consume restores every record it receives, unconditionally overwriting
// whatever is already at the destination (last-writer-wins by arrival
// order, per SPEC_FULL.md's scan-conflict decision -- there is no
// compare-and-set against a previously restored value). Restore retries
// through e.retry like produce's scan/fetch calls, so a destination hiccup
// doesn't fail the task on the first transient error.
func (e *scanEngine) consume(ctx context.Context, records <-chan Record) error {
	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			if err := e.retry(ctx, func() error {
				return e.dst.Restore(ctx, rec)
			}); err != nil {
				return cmn.WrapTransport(cmn.KindRedisClient, err, "scan: restore key %q", rec.Key)
			}
			e.stats.AddKeyRestored(int64(len(rec.Value)))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
