package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"hireline/internal/config"
	"hireline/internal/domain"
	"hireline/internal/metrics"
	hirelinesdk "hireline/sdk/go"
)

// Default failure messages for job mutations.
const (
	CreateJobFailedMessage = "could not create the job, try again"
	UpdateJobFailedMessage = "could not update the job, try again"
	DeleteJobFailedMessage = "could not delete the job"
	StatusFailedMessage    = "could not update the candidate status"
)

// ErrNoOwner is returned by CreateJob without a signed-in owner.
var ErrNoOwner = errors.New("sign in to create a job")

type MutationState string

const (
	MutationPending   MutationState = "pending"
	MutationCommitted MutationState = "committed"
	MutationFailed    MutationState = "failed"
)

// Mutation records one optimistic candidate status change.
type Mutation struct {
	ID          uuid.UUID              `json:"id"`
	CandidateID int64                  `json:"candidate_id"`
	From        domain.CandidateStatus `json:"from"`
	To          domain.StatusValue     `json:"to"`
	// Applied is false when the candidate was not cached, so nothing changed locally.
	Applied        bool          `json:"applied"`
	State          MutationState `json:"state"`
	Reconciliation string        `json:"reconciliation,omitempty"`
}

// MutationError is returned when the server rejected a status change.
// Strategy names how the store was reconciled.
type MutationError struct {
	Mutation     Mutation
	Strategy     string
	Err          error
	ReconcileErr error
}

func (e *MutationError) Error() string {
	msg := fmt.Sprintf("set candidate %d status to %s: %v (reconciled by %s)", e.Mutation.CandidateID, e.Mutation.To, e.Err, e.Strategy)
	if e.ReconcileErr != nil {
		msg += fmt.Sprintf("; reconcile: %v", e.ReconcileErr)
	}
	return msg
}

func (e *MutationError) Unwrap() error { return e.Err }

// SetCandidateStatus applies the new status locally, then asks the server to
// confirm it. A rejected change is reconciled per the engine's strategy.
func (e Engine) SetCandidateStatus(ctx context.Context, candidateID int64, v domain.StatusValue) (Mutation, error) {
	if !v.Valid() {
		return Mutation{}, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, v)
	}
	m := Mutation{ID: uuid.New(), CandidateID: candidateID, To: v, State: MutationPending}
	m.From, m.Applied = e.Store.SetCandidateStatus(candidateID, v)

	err := e.confirmStatus(ctx, candidateID, v)
	if err == nil {
		m.State = MutationCommitted
		e.Metrics.Mutation(metrics.OutcomeOK)
		return m, nil
	}

	m.State = MutationFailed
	e.Metrics.Mutation(metrics.OutcomeFailed)
	strategy, rerr := e.reconcile(ctx, m)
	m.Reconciliation = strategy
	e.Metrics.Reconciled(strategy)
	e.logger().Printf("mutation %s: candidate=%d to=%s failed: %v; reconciled by %s", m.ID, candidateID, v, err, strategy)
	return m, &MutationError{Mutation: m, Strategy: strategy, Err: err, ReconcileErr: rerr}
}

func (e Engine) confirmStatus(ctx context.Context, candidateID int64, v domain.StatusValue) error {
	resp, err := e.Gateway.Patch(ctx, fmt.Sprintf("/api/candidates/%d/status", candidateID), map[string]string{"status": string(v)})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := failure(resp, StatusFailedMessage); err != nil {
		return err
	}
	var c domain.Candidate
	decoded, err := hirelinesdk.DecodeOptionalJSON(resp, &c)
	if err != nil {
		return err
	}
	if decoded {
		if err := domain.Validate(c); err != nil {
			return &hirelinesdk.MalformedResponseError{StatusCode: resp.StatusCode, Err: err}
		}
	}
	return nil
}

// reconcile restores consistency after a rejected mutation. It runs detached
// from the caller's cancellation. Resync without a known user falls back to rollback.
func (e Engine) reconcile(ctx context.Context, m Mutation) (string, error) {
	ctx = context.WithoutCancel(ctx)
	strategy := e.Reconcile
	userID, ok := e.currentUser()
	if strategy == config.ReconcileResync && !ok {
		strategy = config.ReconcileRollback
	}
	switch strategy {
	case config.ReconcileResync:
		err := e.FetchAll(ctx, userID)
		if errors.Is(err, ErrFetchInFlight) {
			return strategy, nil
		}
		return strategy, err
	default:
		if m.Applied {
			e.Store.SetCandidateStatus(m.CandidateID, m.From.Value)
		}
		return config.ReconcileRollback, nil
	}
}

// CreateJob creates a job owned by ownerID and adds the server's copy to the store.
func (e Engine) CreateJob(ctx context.Context, ownerID int64, in domain.JobInput) (domain.JobPosting, error) {
	if ownerID <= 0 {
		return domain.JobPosting{}, ErrNoOwner
	}
	in.Owner = []int64{ownerID}
	if err := domain.Validate(in); err != nil {
		return domain.JobPosting{}, fmt.Errorf("create job: %w", err)
	}
	resp, err := e.Gateway.Post(ctx, "/api/jobs", in)
	if err != nil {
		return domain.JobPosting{}, fmt.Errorf("create job: %w", err)
	}
	defer resp.Body.Close()
	if err := failure(resp, CreateJobFailedMessage); err != nil {
		return domain.JobPosting{}, fmt.Errorf("create job: %w", err)
	}
	var job domain.JobPosting
	if err := hirelinesdk.DecodeJSON(resp, &job); err != nil {
		return domain.JobPosting{}, fmt.Errorf("create job: %w", err)
	}
	if err := domain.Validate(job); err != nil {
		return domain.JobPosting{}, fmt.Errorf("create job: %w", &hirelinesdk.MalformedResponseError{StatusCode: resp.StatusCode, Err: err})
	}
	e.Store.AddJob(job)
	return job, nil
}

// UpdateJob edits a job. An empty success body merges in into the cached job.
func (e Engine) UpdateJob(ctx context.Context, id int64, in domain.JobInput) (domain.JobPosting, error) {
	in.Owner = nil
	if err := domain.Validate(in); err != nil {
		return domain.JobPosting{}, fmt.Errorf("update job %d: %w", id, err)
	}
	resp, err := e.Gateway.Patch(ctx, fmt.Sprintf("/api/jobs/%d", id), in)
	if err != nil {
		return domain.JobPosting{}, fmt.Errorf("update job %d: %w", id, err)
	}
	defer resp.Body.Close()
	if err := failure(resp, UpdateJobFailedMessage); err != nil {
		return domain.JobPosting{}, fmt.Errorf("update job %d: %w", id, err)
	}
	var job domain.JobPosting
	decoded, err := hirelinesdk.DecodeOptionalJSON(resp, &job)
	if err != nil {
		return domain.JobPosting{}, fmt.Errorf("update job %d: %w", id, err)
	}
	if decoded {
		if err := domain.Validate(job); err != nil {
			return domain.JobPosting{}, fmt.Errorf("update job %d: %w", id, &hirelinesdk.MalformedResponseError{StatusCode: resp.StatusCode, Err: err})
		}
	} else {
		cached, ok := e.Store.Job(id)
		if !ok {
			cached = domain.JobPosting{ID: id}
		}
		job = in.ApplyTo(cached)
	}
	e.Store.UpdateJob(job)
	return job, nil
}

// DeleteJob deletes a job on the server, then drops it from the store.
func (e Engine) DeleteJob(ctx context.Context, id int64) error {
	resp, err := e.Gateway.Delete(ctx, fmt.Sprintf("/api/jobs/%d", id))
	if err != nil {
		return fmt.Errorf("delete job %d: %w", id, err)
	}
	defer resp.Body.Close()
	if err := failure(resp, DeleteJobFailedMessage); err != nil {
		return fmt.Errorf("delete job %d: %w", id, err)
	}
	e.Store.RemoveJob(id)
	return nil
}
