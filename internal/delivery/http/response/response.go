package response

import (
	"time"

	"github.com/user/legalcode-service/internal/entity"
)

type StartRunResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	RunID   string `json:"run_id"`
}

// RunResponse is a DTO for a run summary, mirroring entity.RunSummary.
type RunResponse struct {
	ID              string                               `json:"id"`
	Status          string                               `json:"status"`
	StartedAt       time.Time                            `json:"started_at"`
	FinishedAt      *time.Time                           `json:"finished_at,omitempty"`
	Units           int                                  `json:"units"`
	VersionsCreated int                                  `json:"versions_created"`
	Stages          map[entity.Stage]*entity.StageCounts `json:"stages"`
}

func NewRunResponse(s *entity.RunSummary) RunResponse {
	return RunResponse{
		ID:              s.ID,
		Status:          string(s.Status),
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
		Units:           s.Units,
		VersionsCreated: s.VersionsCreated,
		Stages:          s.Stages,
	}
}

type FailureResponse struct {
	RunID      string    `json:"run_id"`
	Stage      string    `json:"stage"`
	Hash       string    `json:"hash,omitempty"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

type FailuresResponse struct {
	Failures []FailureResponse `json:"failures"`
}

func NewFailuresResponse(events []*entity.FailureEvent) FailuresResponse {
	out := FailuresResponse{Failures: make([]FailureResponse, 0, len(events))}
	for _, ev := range events {
		out.Failures = append(out.Failures, FailureResponse{
			RunID:      ev.RunID,
			Stage:      string(ev.Stage),
			Hash:       ev.Hash,
			Kind:       ev.Kind,
			Message:    ev.Message,
			OccurredAt: ev.OccurredAt,
		})
	}
	return out
}
