package api

import "time"

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// QueryResult is the tabular form of a query shared by the shell and the
// HTTP endpoint. Data rows follow the order of Headers.
type QueryResult struct {
	Headers []string `json:"headers"`
	Data    [][]any  `json:"data"`
}

func (r *QueryResult) Empty() bool {
	return r == nil || len(r.Data) == 0
}

type TableCounts struct {
	Pods       int `json:"pods"`
	Nodes      int `json:"nodes"`
	Services   int `json:"services"`
	Containers int `json:"containers"`
}

type RefreshStats struct {
	Cycles              int       `json:"cycles"`
	LastAttempt         time.Time `json:"lastAttempt,omitzero"`
	LastSuccess         time.Time `json:"lastSuccess,omitzero"`
	LastError           string    `json:"lastError,omitempty"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
}

type SnapshotInfo struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"createdAt"`
	Counts    TableCounts  `json:"counts"`
	Refresh   RefreshStats `json:"refresh"`
}
