package worker

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

// Enqueuer stores a job for later delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, url string, payload any, now time.Time) (*domain.Job, error)
}

// ApprovalQueue turns signups into webhook jobs for the operator.
type ApprovalQueue struct {
	Jobs       Enqueuer
	WebhookURL string
	Now        func() time.Time
}

type approvalPayload struct {
	Event string       `json:"event"`
	Data  approvalData `json:"data"`
}

type approvalData struct {
	AccountID   string         `json:"account_id"`
	Profile     domain.Profile `json:"profile"`
	ApprovePath string         `json:"approve_path"`
	DeclinePath string         `json:"decline_path"`
	Timestamp   time.Time      `json:"timestamp"`
}

// RequestApproval queues a "account.signup" webhook. Without a configured
// webhook URL it only logs.
func (q *ApprovalQueue) RequestApproval(ctx context.Context, acc *domain.Account) error {
	if q.WebhookURL == "" {
		slog.Info("No approval webhook configured, signup awaits manual review", "account_id", acc.ID)
		return nil
	}

	now := time.Now()
	if q.Now != nil {
		now = q.Now()
	}

	id := url.PathEscape(acc.ID)
	payload := approvalPayload{
		Event: "account.signup",
		Data: approvalData{
			AccountID:   acc.ID,
			Profile:     acc.Profile,
			ApprovePath: "/admin/accounts/" + id + "/approve",
			DeclinePath: "/admin/accounts/" + id + "/decline",
			Timestamp:   now.UTC(),
		},
	}

	job, err := q.Jobs.Enqueue(ctx, q.WebhookURL, payload, now)
	if err != nil {
		return err
	}
	slog.Info("Approval webhook queued for worker", "account_id", acc.ID, "job_id", job.ID)
	return nil
}
