package request

// StartRunRequest is the optional body of POST /api/runs.
type StartRunRequest struct {
	// Wait runs synchronously and returns the final summary.
	Wait bool `json:"wait"`
}
