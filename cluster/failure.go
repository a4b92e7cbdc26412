package cluster

import (
	"sync"
	"time"
)

// ReporterID names the proxy that observed and reported a failure.
type ReporterID = string

// FailureEntry is a single (proxy, reporter) report, exposed on snapshots.
type FailureEntry struct {
	Proxy     Addr
	Reporter  ReporterID
	Timestamp time.Time
}

type failureKey struct {
	proxy    Addr
	reporter ReporterID
}

// Detector implements C7: a TTL-bounded (proxy, reporter) timestamp map with
// quorum. Grounded on the passive report/purge model implied by §4.7 --
// unlike the teacher's reb/bcast.go pingTarget, which actively probes peers,
// this detector only aggregates reports pushed to it by the (out-of-scope)
// coordinator daemon, per §1's exclusion of active health probing from the
// broker's responsibilities.
type Detector struct {
	mu       sync.Mutex
	reports  map[failureKey]time.Time
}

func NewDetector() *Detector {
	return &Detector{reports: map[failureKey]time.Time{}}
}

// AddFailure inserts or refreshes the timestamp for (proxy, reporter).
func (d *Detector) AddFailure(proxy Addr, reporter ReporterID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reports[failureKey{proxy, reporter}] = time.Now()
}

// Clear removes every report naming proxy, used after ReplaceFailedProxy
// retires it (§8 scenario 4: "failures is cleared for P1").
func (d *Detector) Clear(proxy Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k := range d.reports {
		if k.proxy == proxy {
			delete(d.reports, k)
		}
	}
}

// GetFailures purges entries older than ttl, then returns every proxy for
// which at least quorum distinct reporters remain. Quorum is fixed at 2 by
// the design; ttl is a runtime config (cmn.Config.Failure.TTL).
func (d *Detector) GetFailures(ttl time.Duration) []Addr {
	const quorum = 2
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	reporters := map[Addr]map[ReporterID]bool{}
	for k, ts := range d.reports {
		if now.Sub(ts) > ttl {
			delete(d.reports, k)
			continue
		}
		set, ok := reporters[k.proxy]
		if !ok {
			set = map[ReporterID]bool{}
			reporters[k.proxy] = set
		}
		set[k.reporter] = true
	}

	var out []Addr
	for proxy, set := range reporters {
		if len(set) >= quorum {
			out = append(out, proxy)
		}
	}
	return out
}

// entries returns every live report, used to populate Snapshot.Failures.
func (d *Detector) entries() []FailureEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]FailureEntry, 0, len(d.reports))
	for k, ts := range d.reports {
		out = append(out, FailureEntry{Proxy: k.proxy, Reporter: k.reporter, Timestamp: ts})
	}
	return out
}
