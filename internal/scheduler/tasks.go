package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskApprovalReminder = "routing.approval_reminder"

const TaskStaleProposalSweep = "routing.stale_proposal_sweep"

type ApprovalReminderPayload struct {
	ProposalID string `json:"proposalId"`
}

func NewApprovalReminderTask(payload ApprovalReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskApprovalReminder, data), nil
}

func ParseApprovalReminderPayload(task *asynq.Task) (ApprovalReminderPayload, error) {
	var payload ApprovalReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ApprovalReminderPayload{}, err
	}
	return payload, nil
}

func NewStaleProposalSweepTask() *asynq.Task {
	return asynq.NewTask(TaskStaleProposalSweep, nil)
}
