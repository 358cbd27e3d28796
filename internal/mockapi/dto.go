package mockapi

import "hireline/internal/domain"

// DataResponse is the bulk payload of GET /api/data/all/{userId}.
type DataResponse struct {
	Jobs       []domain.JobPosting `json:"jobs"`
	Candidates []domain.Candidate  `json:"candidates"`
}

type StatusRequest struct {
	Status string `json:"status" example:"Entrevista"`
}

type LoginResponse struct {
	User  domain.UserProfile `json:"user"`
	Token string             `json:"token,omitempty"`
}

type SignUpResponse struct {
	User domain.UserProfile `json:"user"`
}

// errorBody is the only error envelope the API emits.
type errorBody struct {
	status  int
	Message string `json:"error" example:"Candidato não encontrado."`
}

func (e *errorBody) GetStatus() int { return e.status }
func (e *errorBody) Error() string  { return e.Message }

func newError(status int, msg string) *errorBody {
	return &errorBody{status: status, Message: msg}
}
