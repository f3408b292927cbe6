// Package scheduler provides asynq-backed background processing for call
// completions, with an in-process fallback pool for deployments without
// Redis, plus the periodic reconciliation sweep loop.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskCallProcess = "calls.completion.process"

type CallProcessPayload struct {
	ConversationID string `json:"conversationId"`
}

func NewCallProcessTask(payload CallProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	// No automatic retries: failed processing is visible in the event row
	// and only the reconciliation sweep revisits it.
	return asynq.NewTask(TaskCallProcess, data, asynq.MaxRetry(0)), nil
}

func ParseCallProcessPayload(task *asynq.Task) (CallProcessPayload, error) {
	var payload CallProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CallProcessPayload{}, err
	}
	return payload, nil
}
