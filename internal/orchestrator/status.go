package orchestrator

import "time"

// Status is the advisory health surface. It reports, it never gates:
// operations proceed through their fallback paths regardless of what the
// status says.
type Status struct {
	// BackendConfigured is true when a reasoning backend is wired in.
	BackendConfigured bool `json:"backend_configured"`

	// BackendReachable reflects the most recent backend call outcome.
	BackendReachable bool `json:"backend_reachable"`

	// BackendName identifies the provider/model, if configured.
	BackendName string `json:"backend_name,omitempty"`

	// LastRefresh is when the knowledge index last completed a refresh
	// cycle. Zero when no refresher is running or none has completed.
	LastRefresh time.Time `json:"last_refresh"`

	// IndexedDocuments and IndexedChunks describe the knowledge index.
	IndexedDocuments int `json:"indexed_documents"`
	IndexedChunks    int `json:"indexed_chunks"`

	// Rules is the catalog size.
	Rules int `json:"rules"`
}

// Status returns the current advisory status report.
func (o *Orchestrator) Status() Status {
	s := Status{Rules: o.Catalog().Len()}

	if o.backend != nil {
		s.BackendConfigured = true
		s.BackendName = o.backend.Name()
		s.BackendReachable = o.health == nil || o.health.Reachable()
	}

	if o.index != nil {
		s.IndexedDocuments = o.index.DocumentCount()
		s.IndexedChunks = o.index.ChunkCount()
	}
	if o.refresher != nil {
		s.LastRefresh = o.refresher.LastRefresh()
	}
	return s
}
