package entity

import "time"

// Stage names a pipeline stage.
type Stage string

const (
	StageValidate Stage = "validate"
	StageQuery    Stage = "query"
	StageSearch   Stage = "search"
	StageArchive  Stage = "archive"
	StageFetch    Stage = "fetch"
	StageExtract  Stage = "extract"
	StageVersion  Stage = "version"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageValidate, StageQuery, StageSearch, StageArchive, StageFetch, StageExtract, StageVersion}

// FailureEvent mirrors the `failure_events` PostgreSQL table schema.
type FailureEvent struct {
	ID         int64     `json:"id,omitempty"`
	RunID      string    `json:"run_id"`
	Stage      Stage     `json:"stage"`
	Hash       string    `json:"hash"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}
