// Package broker implements C8: a thin synchronous HTTP adapter over the
// metadata store and failure detector. Grounded on
// cuemby-warren/pkg/api/health.go, the only HTTP server anywhere in the
// example pack -- plain net/http, no router library, JSON responses
// written straight to the ResponseWriter.
package broker

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/undermoon-go/undermoon/cluster"
	"github.com/undermoon-go/undermoon/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Version is the broker's reported build version, following the teacher's
// HealthResponse.Version convention.
const Version = "0.1.0"

// Service holds the two collaborators every route touches: the metadata
// store (C6) and the failure detector (C7). No business logic lives here
// per §4.8 -- every handler below is a direct call into one of these two,
// with request decoding/response encoding and error-to-status translation
// around it.
type Service struct {
	store    *cluster.Store
	detector *cluster.Detector
	cfg      *cmn.Config
}

// NewService wires a broker over an already-constructed store and
// detector.
func NewService(store *cluster.Store, detector *cluster.Detector, cfg *cmn.Config) *Service {
	return &Service{store: store, detector: detector, cfg: cfg}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError translates a domain error to its HTTP status per
// cmn.HTTPStatus and writes a JSON error body, matching the design's
// "translates domain errors to HTTP codes... no business logic lives
// here" mandate -- the mapping itself lives in cmn, this just applies it.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, cmn.HTTPStatus(err), map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return cmn.NewInvalidKind("malformed request body: %v", err)
	}
	return nil
}
