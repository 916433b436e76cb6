package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskRetryEntryDue = "retryqueue.entry.due"

type RetryEntryDuePayload struct {
	EntryID  string `json:"entryId"`
	TenantID string `json:"tenantId"`
}

func NewRetryEntryDueTask(payload RetryEntryDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRetryEntryDue, data), nil
}

func ParseRetryEntryDuePayload(task *asynq.Task) (RetryEntryDuePayload, error) {
	var payload RetryEntryDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RetryEntryDuePayload{}, err
	}
	return payload, nil
}
