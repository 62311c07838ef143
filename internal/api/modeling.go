package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// Simulation runs are always staged against the bundled demonstration
// watershed; model selection is the only user-facing knob.
const defaultWatershed = "Bow_at_Banff_lumped"

// JobTypeSimulation is the default modeling job type.
const JobTypeSimulation = "SIMULATION"

type ModelingJobResponse struct {
	Message string `json:"message"`
	JobID   int    `json:"job_id"`
}

type JobStatusResponse struct {
	ID         int             `json:"id"`
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Parameters json.RawMessage `json:"parameters"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

// SubmitModelingJob submits a simulation run for the given hydrological model
// (e.g. "SUMMA"). jobType defaults to SIMULATION when empty.
func (b *Backend) SubmitModelingJob(ctx context.Context, model, jobType string) (*ModelingJobResponse, error) {
	if jobType == "" {
		jobType = JobTypeSimulation
	}
	var out ModelingJobResponse
	err := b.client.Post(ctx, "/run_modeling", map[string]interface{}{
		"type": jobType,
		"parameters": map[string]string{
			"model":     model,
			"watershed": defaultWatershed,
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJobStatus fetches the state of a previously submitted modeling job.
func (b *Backend) GetJobStatus(ctx context.Context, jobID int) (*JobStatusResponse, error) {
	var out JobStatusResponse
	if err := b.client.Get(ctx, fmt.Sprintf("/jobs/%d", jobID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
