package broker

import (
	"net/http"

	"github.com/undermoon-go/undermoon/cluster"
)

// Mux builds the full route table from §6, using the Go 1.22
// method-and-pattern matching added to net/http.ServeMux -- the same plain
// stdlib approach as the teacher's HealthServer, extended from its two
// routes to the full API surface with no router dependency pulled in.
func (s *Service) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /api/metadata", s.handleMetadata)
	mux.HandleFunc("POST /api/validation", s.handleValidation)

	mux.HandleFunc("GET /api/proxies/addresses", s.handleProxyAddresses)
	mux.HandleFunc("PUT /api/proxies/nodes", s.handleAddProxy)
	mux.HandleFunc("DELETE /api/proxies/nodes/{addr}", s.handleRemoveProxy)
	mux.HandleFunc("GET /api/proxies/meta/{addr}", s.handleProxyMeta)
	mux.HandleFunc("POST /api/proxies/failover/{addr}", s.handleFailover)

	mux.HandleFunc("GET /api/clusters/names", s.handleClusterNames)
	mux.HandleFunc("GET /api/clusters/meta/{name}", s.handleClusterMeta)
	mux.HandleFunc("POST /api/clusters/{name}", s.handleAddCluster)
	mux.HandleFunc("DELETE /api/clusters/{name}", s.handleRemoveCluster)
	mux.HandleFunc("POST /api/clusters/{name}/nodes", s.handleAutoAddNodes)
	mux.HandleFunc("DELETE /api/clusters/{name}/nodes/{proxy}", s.handleRemoveProxyFromCluster)
	mux.HandleFunc("POST /api/clusters/{name}/migrations/half/{src}/{dst}", s.handleMigrateHalf)
	mux.HandleFunc("POST /api/clusters/{name}/migrations/all/{src}/{dst}", s.handleMigrateAll)
	mux.HandleFunc("DELETE /api/clusters/{name}/migrations/{src}/{dst}", s.handleStopMigration)
	mux.HandleFunc("PUT /api/clusters/migrations", s.handleCommitMigration)
	mux.HandleFunc("POST /api/clusters/{name}/replications/{master}/{replica}", s.handleAssignReplica)

	mux.HandleFunc("POST /api/failures/{proxy}/{reporter}", s.handleReportFailure)
	mux.HandleFunc("GET /api/failures", s.handleGetFailures)

	return mux
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(Version))
}

func (s *Service) handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Service) handleValidation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Validate(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleProxyAddresses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"addresses": s.store.ProxyAddresses()})
}

type addProxyRequest struct {
	ProxyAddress string        `json:"proxy_address"`
	Nodes        []cluster.Addr `json:"nodes"`
}

func (s *Service) handleAddProxy(w http.ResponseWriter, r *http.Request) {
	var req addProxyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.AddProxy(req.ProxyAddress, req.Nodes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Service) handleRemoveProxy(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveProxy(r.PathValue("addr")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Service) handleProxyMeta(w http.ResponseWriter, r *http.Request) {
	p, ok := s.store.ProxyMeta(r.PathValue("addr"))
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"host": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"host": p})
}

func (s *Service) handleFailover(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.ReplaceFailedProxy(r.PathValue("addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Service) handleClusterNames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"names": s.store.ClusterNames()})
}

func (s *Service) handleClusterMeta(w http.ResponseWriter, r *http.Request) {
	c, ok := s.store.ClusterMeta(r.PathValue("name"))
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"cluster": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cluster": c})
}

func (s *Service) handleAddCluster(w http.ResponseWriter, r *http.Request) {
	if err := s.store.AddCluster(r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Service) handleRemoveCluster(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveCluster(r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Service) handleAutoAddNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.store.AutoAddNodes(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Service) handleRemoveProxyFromCluster(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveProxyFromCluster(r.PathValue("name"), r.PathValue("proxy")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Service) handleMigrateHalf(w http.ResponseWriter, r *http.Request) {
	s.migrate(w, r, cluster.KindHalf)
}

func (s *Service) handleMigrateAll(w http.ResponseWriter, r *http.Request) {
	s.migrate(w, r, cluster.KindAll)
}

func (s *Service) migrate(w http.ResponseWriter, r *http.Request, kind cluster.MigrationKind) {
	meta, err := s.store.MigrateSlots(r.PathValue("name"), r.PathValue("src"), r.PathValue("dst"), kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Service) handleStopMigration(w http.ResponseWriter, r *http.Request) {
	if err := s.store.StopMigrations(r.PathValue("name"), r.PathValue("src"), r.PathValue("dst")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Service) handleCommitMigration(w http.ResponseWriter, r *http.Request) {
	var meta cluster.MigrationTaskMeta
	if err := decodeBody(r, &meta); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.CommitMigration(meta); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Service) handleAssignReplica(w http.ResponseWriter, r *http.Request) {
	err := s.store.AssignReplica(r.PathValue("name"), r.PathValue("master"), r.PathValue("replica"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Service) handleReportFailure(w http.ResponseWriter, r *http.Request) {
	s.detector.AddFailure(r.PathValue("proxy"), r.PathValue("reporter"))
	writeJSON(w, http.StatusOK, nil)
}

func (s *Service) handleGetFailures(w http.ResponseWriter, r *http.Request) {
	addrs := s.detector.GetFailures(s.cfg.Failure.TTL)
	writeJSON(w, http.StatusOK, map[string]interface{}{"addresses": addrs})
}
