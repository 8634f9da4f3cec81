package store

import (
	"encoding/json"
	"time"

	"github.com/flowforge/enginecore/engine"
)

// record is the JSON-serializable shape persisted by the SQL-backed
// stores: engine.Execution's unexported Context internals are flattened to
// their raw value map, matching a plain "JSON of the engine's Execution
// shape is the canonical form."
type record struct {
	ID                string            `json:"id"`
	FlowID            string            `json:"flowId"`
	FlowVersion       string            `json:"flowVersion"`
	TenantID          string            `json:"tenantId,omitempty"`
	ParentExecutionID string            `json:"parentExecutionId,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`

	IdempotencyKey       string    `json:"idempotencyKey,omitempty"`
	IdempotencyExpiresAt time.Time `json:"idempotencyExpiresAt,omitempty"`

	Status      string `json:"status"`
	CurrentStep string `json:"currentStepId"`

	ContextValues map[string]engine.Value `json:"context"`

	StepCount int                     `json:"stepCount"`
	History   []engine.HistoryEntry   `json:"history,omitempty"`

	Wait    *engine.WaitState `json:"wait,omitempty"`
	Cancel  engine.CancelState `json:"cancellation"`
	Retries map[string]int     `json:"retries,omitempty"`

	Failure *engine.Failure `json:"failure,omitempty"`
	Output  engine.Value    `json:"output"`

	Timeouts engine.TimeoutConfig `json:"timeouts"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toRecord(exec *engine.Execution) record {
	var values map[string]engine.Value
	if exec.Context != nil {
		values = exec.Context.Values()
	}
	return record{
		ID:                   exec.ID,
		FlowID:               exec.FlowID,
		FlowVersion:          exec.FlowVersion,
		TenantID:             exec.TenantID,
		ParentExecutionID:    exec.ParentExecutionID,
		Metadata:             exec.Metadata,
		IdempotencyKey:       exec.IdempotencyKey,
		IdempotencyExpiresAt: exec.IdempotencyExpiresAt,
		Status:               string(exec.Status),
		CurrentStep:          exec.CurrentStep,
		ContextValues:        values,
		StepCount:            exec.StepCount,
		History:              exec.History,
		Wait:                 exec.Wait,
		Cancel:               exec.Cancel,
		Retries:              exec.Retries,
		Failure:              exec.Failure,
		Output:               exec.Output,
		Timeouts:             exec.Timeouts,
		CreatedAt:            exec.CreatedAt,
		UpdatedAt:            exec.UpdatedAt,
	}
}

func fromRecord(r record, budget engine.Budget, external engine.ExternalStore) *engine.Execution {
	return &engine.Execution{
		ID:                   r.ID,
		FlowID:               r.FlowID,
		FlowVersion:          r.FlowVersion,
		TenantID:             r.TenantID,
		ParentExecutionID:    r.ParentExecutionID,
		Metadata:             r.Metadata,
		IdempotencyKey:       r.IdempotencyKey,
		IdempotencyExpiresAt: r.IdempotencyExpiresAt,
		Status:               engine.Status(r.Status),
		CurrentStep:          r.CurrentStep,
		Context:              engine.FromValues(budget, external, r.ContextValues),
		StepCount:            r.StepCount,
		History:              r.History,
		Wait:                 r.Wait,
		Cancel:               r.Cancel,
		Retries:              r.Retries,
		Failure:              r.Failure,
		Output:               r.Output,
		Timeouts:             r.Timeouts,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

func marshalExecution(exec *engine.Execution) ([]byte, error) {
	return json.Marshal(toRecord(exec))
}

func unmarshalExecution(data []byte, budget engine.Budget, external engine.ExternalStore) (*engine.Execution, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return fromRecord(r, budget, external), nil
}
