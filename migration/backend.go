package migration

import (
	"context"
	"time"
)

// Record is a single key/value pair moved by the scan engine, with its TTL
// (0 meaning no expiry).
type Record struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// ScanCursor is the narrow boundary to the out-of-scope raw backend
// connection pool (§1 Non-goals). Its contract mirrors
// original_source/src/migration/task.rs's ScanResponse: an opaque cursor
// plus a page of keys, with cursor == 0 signaling exhaustion.
type ScanCursor interface {
	// Scan pulls the next page starting at cursor (0 to start), returning
	// the next cursor (0 when exhausted) and the keys in this page.
	Scan(ctx context.Context, cursor uint64, count int) (next uint64, keys []string, err error)
	// Fetch reads the value and TTL for key, for keys the caller has
	// already confirmed are in scope by slot membership.
	Fetch(ctx context.Context, key string) (Record, error)
}

// Destination is the narrow boundary to the destination data node: an
// idempotent restore operation. Per the last-writer-wins-by-arrival-order
// decision (SPEC_FULL.md), Restore always overwrites unconditionally.
type Destination interface {
	Restore(ctx context.Context, rec Record) error
}

// PeerClient is the narrow boundary to the out-of-scope RESP client: sends
// one UMCTL sub-command to a peer proxy and returns its reply. A nil error
// with ok=false and reply==NotReadyReply distinguishes the expected
// not-ready case from a genuine transport error (non-nil err).
type PeerClient interface {
	SendUMCTL(ctx context.Context, peerProxyAddr string, sub SubCmd, arg SwitchArg) (ok bool, reply string, err error)
}

// CommandRouter is the narrow boundary to the per-connection session
// frontend (§1 Non-goals): it redirects or forwards a client command once a
// task has decided where it belongs.
type CommandRouter interface {
	// Redirect returns a MOVED-style redirection pointing at addr.
	Redirect(cmd interface{}, addr string) error
	// Forward delivers cmd to the local data node this proxy owns.
	Forward(cmd interface{}) error
}
