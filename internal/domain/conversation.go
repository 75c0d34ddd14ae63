package domain

import "time"

// Turn is one completed (query, response) exchange within a session.
type Turn struct {
	Query    string
	Response string
}

// IngestionRun records one completed pass of PDF ingestion into the search
// index.
type IngestionRun struct {
	Index      string    `json:"index"`
	Files      []string  `json:"files"`
	Chunks     int       `json:"chunks"`
	Indexed    int       `json:"indexed"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}
