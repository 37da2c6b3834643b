package jobs

import "time"

// RunStatus describes how a single configured search ended.
type RunStatus string

const (
	RunOK               RunStatus = "ok"
	RunQuotaBlocked     RunStatus = "quota_blocked"
	RunAdapterError     RunStatus = "adapter_error"
	RunStoreUnavailable RunStatus = "store_unavailable"
	// RunSkipped marks searches never attempted because an earlier search hit an unavailable store.
	RunSkipped RunStatus = "skipped"
)

// SearchRunResult is an append-only log record of one configured search.
type SearchRunResult struct {
	ID            string    `json:"id"`
	InvocationID  string    `json:"invocationId"`
	Platform      string    `json:"platform"`
	Keyword       string    `json:"keyword"`
	FiltersJSON   string    `json:"filters,omitempty"`
	RawCount      int       `json:"rawCount"`
	FilteredCount int       `json:"filteredCount"`
	FinalCount    int       `json:"finalCount"`
	Status        RunStatus `json:"status"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
}

func (r SearchRunResult) Failed() bool {
	return r.Status == RunAdapterError || r.Status == RunStoreUnavailable
}

// QuotaRecord holds the counters of one platform for one calendar day.
type QuotaRecord struct {
	Platform        string `json:"platform"`
	Date            string `json:"date"`
	SearchesRun     int    `json:"searchesRun"`
	CandidatesFound int    `json:"candidatesFound"`
}

// DateLayout is the calendar day format used as the quota key.
const DateLayout = "2006-01-02"
