package entity

import "time"

// StageState is the terminal outcome of one stage for one unit.
type StageState string

const (
	StateCompleted StageState = "COMPLETED"
	StateDeferred  StageState = "DEFERRED"
	StateFailed    StageState = "FAILED"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunTimedOut  RunStatus = "timed_out"
	RunCancelled RunStatus = "cancelled"
)

// StageCounts tallies terminal states and cache hits for a stage.
type StageCounts struct {
	Completed int `json:"completed"`
	Deferred  int `json:"deferred"`
	Failed    int `json:"failed"`
	CacheHits int `json:"cache_hits"`
}

// RunSummary mirrors the `pipeline_runs` PostgreSQL table schema.
type RunSummary struct {
	ID              string                 `json:"id"`
	Status          RunStatus              `json:"status"`
	StartedAt       time.Time              `json:"started_at"`
	FinishedAt      *time.Time             `json:"finished_at,omitempty"`
	Units           int                    `json:"units"`
	VersionsCreated int                    `json:"versions_created"`
	Stages          map[Stage]*StageCounts `json:"stages"`
}

// NewRunSummary returns a summary with a zeroed counter for every stage.
func NewRunSummary(id string, startedAt time.Time) *RunSummary {
	s := &RunSummary{
		ID:        id,
		Status:    RunPending,
		StartedAt: startedAt,
		Stages:    make(map[Stage]*StageCounts, len(Stages)),
	}
	for _, st := range Stages {
		s.Stages[st] = &StageCounts{}
	}
	return s
}

// Record adds one terminal state for stage.
func (s *RunSummary) Record(stage Stage, state StageState) {
	c, ok := s.Stages[stage]
	if !ok {
		c = &StageCounts{}
		s.Stages[stage] = c
	}
	switch state {
	case StateCompleted:
		c.Completed++
	case StateDeferred:
		c.Deferred++
	case StateFailed:
		c.Failed++
	}
}

// RecordCacheHit counts a stage that was skipped because its cached result was still valid.
func (s *RunSummary) RecordCacheHit(stage Stage) {
	c, ok := s.Stages[stage]
	if !ok {
		c = &StageCounts{}
		s.Stages[stage] = c
	}
	c.CacheHits++
}

// UnitOutcome is what a single unit contributed to the run.
type UnitOutcome struct {
	Unit           UnitKey
	States         map[Stage]StageState
	CacheHits      []Stage
	VersionCreated bool
	Deferred       bool
}

// NewUnitOutcome returns an outcome with no stages recorded.
func NewUnitOutcome(unit UnitKey) *UnitOutcome {
	return &UnitOutcome{Unit: unit, States: make(map[Stage]StageState)}
}

// Set records the terminal state of a stage.
func (o *UnitOutcome) Set(stage Stage, state StageState) {
	o.States[stage] = state
	if state == StateDeferred {
		o.Deferred = true
	}
}

// Hit records a cache hit for stage.
func (o *UnitOutcome) Hit(stage Stage) {
	o.CacheHits = append(o.CacheHits, stage)
}

// Merge folds a unit outcome into the summary.
func (s *RunSummary) Merge(o *UnitOutcome) {
	s.Units++
	for stage, state := range o.States {
		s.Record(stage, state)
	}
	for _, stage := range o.CacheHits {
		s.RecordCacheHit(stage)
	}
	if o.VersionCreated {
		s.VersionsCreated++
	}
}
