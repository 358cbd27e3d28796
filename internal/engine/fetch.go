package engine

import (
	"context"
	"errors"
	"fmt"

	"hireline/internal/domain"
	"hireline/internal/metrics"
	hirelinesdk "hireline/sdk/go"
)

// ErrFetchInFlight is returned, without any request, while another bulk load runs.
var ErrFetchInFlight = errors.New("fetch already in progress")

// LoadFailedMessage is the store error after any failed bulk load.
const LoadFailedMessage = "failed to load data"

// FetchAll reloads jobs, candidates and, when enabled, schedules for userID.
// The store always leaves Loading before FetchAll returns.
func (e Engine) FetchAll(ctx context.Context, userID int64) error {
	if !e.Store.BeginLoad() {
		e.Metrics.Fetch(metrics.OutcomeDeduped)
		return ErrFetchInFlight
	}
	start := e.now()
	jobs, candidates, err := e.fetchData(ctx, userID)
	var schedules []domain.Schedule
	if err == nil && e.IncludeSchedules {
		schedules, err = e.fetchSchedules(ctx, userID)
	}
	if err != nil {
		e.Store.FailLoad(LoadFailedMessage)
		e.Metrics.Fetch(metrics.OutcomeFailed)
		e.logger().Printf("fetch: user=%d: %v", userID, err)
		return fmt.Errorf("fetch all for user %d: %w", userID, err)
	}
	e.Store.CompleteLoad(jobs, candidates, schedules)
	e.Metrics.Fetch(metrics.OutcomeOK)
	e.logger().Printf("fetch: user=%d jobs=%d candidates=%d in %s", userID, len(jobs), len(candidates), e.now().Sub(start))
	return nil
}

func (e Engine) fetchData(ctx context.Context, userID int64) ([]domain.JobPosting, []domain.Candidate, error) {
	resp, err := e.Gateway.Get(ctx, fmt.Sprintf("/api/data/all/%d", userID))
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if err := failure(resp, LoadFailedMessage); err != nil {
		return nil, nil, err
	}
	var body struct {
		Jobs       []domain.JobPosting `json:"jobs"`
		Candidates []domain.Candidate  `json:"candidates"`
	}
	if err := hirelinesdk.DecodeJSON(resp, &body); err != nil {
		return nil, nil, err
	}
	if err := domain.ValidateAll("jobs", body.Jobs); err != nil {
		return nil, nil, &hirelinesdk.MalformedResponseError{StatusCode: resp.StatusCode, Err: err}
	}
	if err := domain.ValidateAll("candidates", body.Candidates); err != nil {
		return nil, nil, &hirelinesdk.MalformedResponseError{StatusCode: resp.StatusCode, Err: err}
	}
	return body.Jobs, body.Candidates, nil
}

func (e Engine) fetchSchedules(ctx context.Context, userID int64) ([]domain.Schedule, error) {
	resp, err := e.Gateway.Get(ctx, fmt.Sprintf("/api/schedules/%d", userID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := failure(resp, LoadFailedMessage); err != nil {
		return nil, err
	}
	var schedules []domain.Schedule
	if err := hirelinesdk.DecodeJSON(resp, &schedules); err != nil {
		return nil, err
	}
	if err := domain.ValidateAll("schedules", schedules); err != nil {
		return nil, &hirelinesdk.MalformedResponseError{StatusCode: resp.StatusCode, Err: err}
	}
	if schedules == nil {
		schedules = []domain.Schedule{}
	}
	return schedules, nil
}
