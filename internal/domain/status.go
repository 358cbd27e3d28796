package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidStatus    = errors.New("invalid candidate status")
	ErrInvalidJobStatus = errors.New("invalid job status")
)

// StatusValue is a pipeline stage a candidate can be in.
type StatusValue string

const (
	StatusScreening StatusValue = "Triagem"
	StatusInterview StatusValue = "Entrevista"
	StatusApproved  StatusValue = "Aprovado"
	StatusRejected  StatusValue = "Reprovado"
)

// Statuses lists the stages in board order. The index is the stage identifier.
var Statuses = []StatusValue{StatusScreening, StatusInterview, StatusApproved, StatusRejected}

// ParseStatusValue matches s case-insensitively against the known stages.
func ParseStatusValue(s string) (StatusValue, error) {
	trimmed := strings.TrimSpace(s)
	for _, v := range Statuses {
		if strings.EqualFold(trimmed, string(v)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (v StatusValue) ordinal() int {
	for i, s := range Statuses {
		if s == v {
			return i
		}
	}
	return -1
}

func (v StatusValue) Valid() bool { return v.ordinal() >= 0 }

// CandidateStatus is the tagged form of a stage: a stable identifier plus its display value.
type CandidateStatus struct {
	ID    int         `json:"id"`
	Value StatusValue `json:"value"`
}

// NewCandidateStatus builds the canonical tagged value for v.
func NewCandidateStatus(v StatusValue) CandidateStatus {
	return CandidateStatus{ID: v.ordinal(), Value: v}
}

// UnmarshalJSON accepts {"id","value"}, a bare stage name, or null (screening).
// The identifier is always re-derived from the value.
func (s *CandidateStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = NewCandidateStatus(StatusScreening)
		return nil
	}
	var raw string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("candidate status: %w", err)
		}
	} else {
		var obj struct {
			Value *string `json:"value"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("candidate status: %w", err)
		}
		if obj.Value == nil {
			return fmt.Errorf("%w: missing value", ErrInvalidStatus)
		}
		raw = *obj.Value
	}
	v, err := ParseStatusValue(raw)
	if err != nil {
		return err
	}
	*s = NewCandidateStatus(v)
	return nil
}

// UnmarshalJSON defaults a missing status to screening.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	type alias Candidate
	a := alias{Status: NewCandidateStatus(StatusScreening)}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Jobs == nil {
		a.Jobs = []LinkRef{}
	}
	*c = Candidate(a)
	return nil
}

// JobStatus is the lifecycle state of a job posting.
type JobStatus string

const (
	JobInProgress JobStatus = "in progress"
	JobFinished   JobStatus = "finished"
)

func ParseJobStatus(s string) (JobStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "in progress", "in_progress":
		return JobInProgress, nil
	case "finished":
		return JobFinished, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidJobStatus, s)
}

// UnmarshalJSON accepts a bare string, a {"id","value"} select option, or null.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = JobInProgress
		return nil
	}
	var raw string
	if data[0] == '{' {
		var obj struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("job status: %w", err)
		}
		raw = obj.Value
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("job status: %w", err)
	}
	v, err := ParseJobStatus(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// UnmarshalJSON accepts either {"id","value"} or a bare id.
func (l *LinkRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '{' {
		type alias LinkRef
		var a alias
		if err := json.Unmarshal(data, &a); err != nil {
			return fmt.Errorf("link: %w", err)
		}
		*l = LinkRef(a)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	id, err := n.Int64()
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	*l = LinkRef{ID: id}
	return nil
}
