package domain

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// LinkRef is a reference to a row in another table, as the API renders linked fields.
type LinkRef struct {
	ID    int64  `json:"id"`
	Value string `json:"value,omitempty"`
}

type JobPosting struct {
	ID             int64     `json:"id" validate:"gt=0"`
	Title          string    `json:"titulo"`
	Description    string    `json:"descricao"`
	Address        string    `json:"endereco"`
	RequiredSkills string    `json:"requisitos_obrigatorios"`
	DesiredSkills  string    `json:"requisitos_desejaveis"`
	Owner          []LinkRef `json:"usuario,omitempty"`
	CandidateCount int       `json:"candidatos"`
	ApprovedCount  int       `json:"aprovados"`
	RejectedCount  int       `json:"reprovados"`
	CreatedAt      string    `json:"created_at,omitempty" format:"date-time"`
	Status         JobStatus `json:"status"`
}

type Candidate struct {
	ID     int64           `json:"id" validate:"gt=0"`
	Name   string          `json:"nome"`
	Score  float64         `json:"score"`
	Jobs   []LinkRef       `json:"vaga"`
	Status CandidateStatus `json:"status"`
}

// AppliedTo reports whether the candidate is linked to the job.
func (c Candidate) AppliedTo(jobID int64) bool {
	for _, j := range c.Jobs {
		if j.ID == jobID {
			return true
		}
	}
	return false
}

type Schedule struct {
	ID          int64     `json:"id" validate:"gt=0"`
	Title       string    `json:"titulo"`
	Start       time.Time `json:"inicio" validate:"required"`
	End         time.Time `json:"fim" validate:"required,gtefield=Start"`
	Candidate   []LinkRef `json:"candidato"`
	Job         []LinkRef `json:"vaga"`
	Details     string    `json:"detalhes,omitempty"`
	GoogleEvent bool      `json:"google_event"`
}

type UserProfile struct {
	ID              int64  `json:"id" validate:"gt=0"`
	Name            string `json:"nome"`
	Email           string `json:"email"`
	Phone           string `json:"telefone,omitempty"`
	Company         string `json:"empresa,omitempty"`
	GoogleConnected bool   `json:"isGoogleConnected"`
}

type LoginCredentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SignUpCredentials struct {
	Name     string `json:"nome" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Phone    string `json:"telefone,omitempty"`
	Company  string `json:"empresa,omitempty"`
}

// JobInput is the editable part of a job posting. Owner is only sent on create.
type JobInput struct {
	Title          string  `json:"titulo" validate:"required"`
	Description    string  `json:"descricao" validate:"required"`
	Address        string  `json:"endereco"`
	RequiredSkills string  `json:"requisitos_obrigatorios"`
	DesiredSkills  string  `json:"requisitos_desejaveis"`
	Owner          []int64 `json:"usuario,omitempty"`
}

// ApplyTo copies the editable fields onto job.
func (in JobInput) ApplyTo(job JobPosting) JobPosting {
	job.Title = in.Title
	job.Description = in.Description
	job.Address = in.Address
	job.RequiredSkills = in.RequiredSkills
	job.DesiredSkills = in.DesiredSkills
	return job
}

var validate = validator.New()

// Validate checks v against its validate struct tags.
func Validate(v any) error {
	return validate.Struct(v)
}

// ValidateAll validates every element and reports the first failure with its index.
func ValidateAll[T any](kind string, items []T) error {
	for i := range items {
		if err := validate.Struct(items[i]); err != nil {
			return &PayloadError{Kind: kind, Index: i, Err: err}
		}
	}
	return nil
}

// PayloadError reports a server payload element that failed validation.
type PayloadError struct {
	Kind  string
	Index int
	Err   error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s[%d]: %v", e.Kind, e.Index, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }
