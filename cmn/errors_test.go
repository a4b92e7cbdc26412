package cmn

import (
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NewNoAvailableResource("no free proxies"), http.StatusConflict},
		{NewInconsistent("invariant violated"), http.StatusInternalServerError},
		{NewNotFound("cluster missing"), http.StatusBadRequest},
		{NewRoleConflict("already a replica"), http.StatusBadRequest},
		{nil, http.StatusOK},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	base := NewNotFound("node %s missing", "n1")
	if KindOf(base) != KindNotFound {
		t.Fatalf("KindOf(base) = %q, want %q", KindOf(base), KindNotFound)
	}
	if !Is(base, KindNotFound) {
		t.Fatal("Is(base, KindNotFound) should be true")
	}
	wrapped := fmt.Errorf("store: %w", base)
	if KindOf(wrapped) != KindNotFound {
		t.Fatalf("KindOf(wrapped) = %q, want %q", KindOf(wrapped), KindNotFound)
	}
	if !Is(wrapped, KindNotFound) {
		t.Fatal("Is(wrapped, KindNotFound) should be true")
	}
}

func TestWrapTransportPreservesCause(t *testing.T) {
	cause := NewTimeout("dial timed out")
	wrapped := WrapTransport(KindRedisClient, cause, "scan: fetch key %q", "foo")
	if KindOf(wrapped) != KindRedisClient {
		t.Fatalf("KindOf(wrapped) = %q, want %q", KindOf(wrapped), KindRedisClient)
	}
	if wrapped.Unwrap() == nil {
		t.Fatal("expected wrapped error to preserve its cause via Unwrap")
	}
}

func TestWithContextAttachesClusterEpochPhase(t *testing.T) {
	err := NewInconsistent("slot coverage broken").WithContext("c1", 4, "Scanning")
	if err.Cluster != "c1" || err.Epoch != 4 || err.Phase != "Scanning" {
		t.Fatalf("WithContext did not stick: %+v", err)
	}
}
