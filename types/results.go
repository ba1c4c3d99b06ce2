package types

// MutationResult is the structured outcome of a single remote mutation.
// Operations return it instead of raising; a failed mutation carries the
// last error as a diagnostic string.
type MutationResult struct {
	Success  bool   `json:"success"`
	NotFound bool   `json:"notFound,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
}

// MarkReadResult reports the outcome of the dual write performed by
// MarkRead. Overall success is local OR remote: the cache is the fast path,
// the remote store is the durable path reconciled later.
type MarkReadResult struct {
	Success bool   `json:"success"`
	Local   bool   `json:"local"`
	Remote  bool   `json:"remote"`
	Error   string `json:"error,omitempty"`
}

// BatchResult aggregates a chunked batch mutation. Individual chunk failures
// never abort the remaining chunks.
type BatchResult struct {
	SuccessCount int      `json:"successCount"`
	FailedCount  int      `json:"failedCount"`
	Errors       []string `json:"errors,omitempty"`
}

// AnalysisReport is the outcome of cross-checking one audience's cached
// read-id set against the remote store. It is computed on demand and never
// persisted. Unverifiable ids (store unreachable during the check) are kept
// in ValidIDs: only ids positively confirmed missing are evicted.
type AnalysisReport struct {
	Audience        Audience `json:"audience"`
	TotalStored     int      `json:"totalStored"`
	ValidInRemote   int      `json:"validInRemote"`
	InvalidEntries  int      `json:"invalidEntries"`
	ValidIDs        []string `json:"-"`
	InvalidIDs      []string `json:"-"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// HealthScore is the percentage of cached ids confirmed valid, rounded.
// An empty set is vacuously healthy.
func (r *AnalysisReport) HealthScore() int {
	if r.TotalStored == 0 {
		return 100
	}
	return int(float64(r.ValidInRemote)/float64(r.TotalStored)*100 + 0.5)
}

// CleanupResult reports how a read-id set was rewritten.
type CleanupResult struct {
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

// MaintenanceReport is the outcome of one analyze-then-repair pass.
// ResetRequired signals that the cached state was mostly stale and a
// full reset is warranted; triggering the reset is left to the caller.
type MaintenanceReport struct {
	Analysis      AnalysisReport `json:"analysis"`
	Cleanup       *CleanupResult `json:"cleanup,omitempty"`
	ResetRequired bool           `json:"resetRequired"`
}

// AudienceHealth is one audience's slice of a combined health report.
type AudienceHealth struct {
	Audience Audience       `json:"audience"`
	Score    int            `json:"score"`
	Analysis AnalysisReport `json:"analysis"`
}

// HealthSummary combines per-audience health into one report with a
// rendered textual form for diagnostic tooling.
type HealthSummary struct {
	Actor    string           `json:"actorId"`
	Scopes   []AudienceHealth `json:"scopes"`
	Rendered string           `json:"rendered"`
}
