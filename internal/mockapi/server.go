// Package mockapi is an in-memory Hireline API used by tests and hl mock-server.
package mockapi

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hireline/internal/domain"
)

type Config struct {
	// JWTSecret signs login tokens. Empty uses a fixed development secret.
	JWTSecret string
	TokenTTL  time.Duration
	// RequireAuth rejects /api calls outside /api/auth without a valid bearer token.
	RequireAuth bool
	Logger      *log.Logger
	Now         func() time.Time
}

func (c Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

type user struct {
	profile  domain.UserProfile
	password string
}

// Server holds the API state. All methods are safe for concurrent use.
type Server struct {
	cfg     Config
	handler http.Handler

	mu         sync.Mutex
	nextID     int64
	users      []*user
	jobs       []domain.JobPosting
	candidates []domain.Candidate
	schedules  []domain.Schedule

	ctl      controls
	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

func New(cfg Config) *Server {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "hireline-dev-secret"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{
		cfg:      cfg,
		nextID:   1000,
		registry: prometheus.NewRegistry(),
		ctl:      newControls(),
	}
	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hireline_mockapi",
		Name:      "requests_total",
		Help:      "Requests served by route and status code.",
	}, []string{"method", "route", "code"})
	s.registry.MustRegister(s.requests)
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Registry exposes the server's private metrics registry.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

func (s *Server) routes() http.Handler {
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newError(status, joinErrors(msg, errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		return newError(status, joinErrors(msg, errs))
	}

	router := chi.NewRouter()
	router.Use(s.metricsMiddleware)
	router.Use(s.controlMiddleware)
	router.Use(newAuthMiddleware(s.cfg))
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	hcfg := huma.DefaultConfig("Hireline API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)

	registerHealth(api)
	registerData(api, s)
	registerCandidates(api, s)
	registerJobs(api, s)
	registerAuth(api, s)
	registerUsers(api, s)
	return router
}

func joinErrors(msg string, errs []error) string {
	if len(errs) == 0 {
		return msg
	}
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	return msg + ": " + strings.Join(parts, "; ")
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type userPath struct {
	UserID int64 `path:"userId"`
}

type idPath struct {
	ID int64 `path:"id"`
}

func registerData(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "get-all-data",
		Method:      http.MethodGet,
		Path:        "/api/data/all/{userId}",
		Summary:     "Jobs owned by a user and the candidates applying to them",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *userPath) (*struct {
		Body DataResponse `json:"body"`
	}, error) {
		data, ok := s.dataFor(input.UserID)
		if !ok {
			return nil, newError(http.StatusNotFound, "Usuário não encontrado.")
		}
		return &struct {
			Body DataResponse `json:"body"`
		}{Body: data}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-schedules",
		Method:      http.MethodGet,
		Path:        "/api/schedules/{userId}",
		Summary:     "Interview schedules for a user's jobs",
	}, func(ctx context.Context, input *userPath) (*struct {
		Body []domain.Schedule `json:"body"`
	}, error) {
		return &struct {
			Body []domain.Schedule `json:"body"`
		}{Body: s.schedulesFor(input.UserID)}, nil
	})
}

func registerCandidates(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "set-candidate-status",
		Method:      http.MethodPatch,
		Path:        "/api/candidates/{id}/status",
		Summary:     "Move a candidate to another stage",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64         `path:"id"`
		Body StatusRequest `json:"body"`
	}) (*struct {
		Body domain.Candidate `json:"body"`
	}, error) {
		v, err := domain.ParseStatusValue(input.Body.Status)
		if err != nil {
			return nil, newError(http.StatusBadRequest, fmt.Sprintf("Status inválido: %s", input.Body.Status))
		}
		c, ok := s.setCandidateStatus(input.ID, v)
		if !ok {
			return nil, newError(http.StatusNotFound, "Candidato não encontrado.")
		}
		return &struct {
			Body domain.Candidate `json:"body"`
		}{Body: c}, nil
	})
}

func registerJobs(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-job",
		Method:        http.MethodPost,
		Path:          "/api/jobs",
		Summary:       "Create a job posting",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body domain.JobInput `json:"body"`
	}) (*struct {
		Body domain.JobPosting `json:"body"`
	}, error) {
		if err := domain.Validate(input.Body); err != nil {
			return nil, newError(http.StatusBadRequest, "Título e descrição são obrigatórios.")
		}
		return &struct {
			Body domain.JobPosting `json:"body"`
		}{Body: s.createJob(input.Body)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-job",
		Method:      http.MethodPatch,
		Path:        "/api/jobs/{id}",
		Summary:     "Edit a job posting",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64           `path:"id"`
		Body domain.JobInput `json:"body"`
	}) (*struct {
		Body domain.JobPosting `json:"body"`
	}, error) {
		if err := domain.Validate(input.Body); err != nil {
			return nil, newError(http.StatusBadRequest, "Título e descrição são obrigatórios.")
		}
		job, ok := s.updateJob(input.ID, input.Body)
		if !ok {
			return nil, newError(http.StatusNotFound, "Vaga não encontrada.")
		}
		return &struct {
			Body domain.JobPosting `json:"body"`
		}{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-job",
		Method:      http.MethodDelete,
		Path:        "/api/jobs/{id}",
		Summary:     "Delete a job posting",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if !s.deleteJob(input.ID) {
			return nil, newError(http.StatusNotFound, "Vaga não encontrada.")
		}
		return nil, nil
	})
}

func registerAuth(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/api/auth/login",
		Summary:     "Sign in with email and password",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body domain.LoginCredentials `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		u, ok := s.authenticate(input.Body.Email, input.Body.Password)
		if !ok {
			return nil, newError(http.StatusUnauthorized, "E-mail ou senha inválidos.")
		}
		token, err := signToken(s.cfg, u)
		if err != nil {
			s.cfg.logger().Printf("mockapi: sign token: %v", err)
			return nil, newError(http.StatusInternalServerError, "Erro interno.")
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{User: u, Token: token}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "signup",
		Method:        http.MethodPost,
		Path:          "/api/auth/signup",
		Summary:       "Register a new recruiter",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body domain.SignUpCredentials `json:"body"`
	}) (*struct {
		Body SignUpResponse `json:"body"`
	}, error) {
		if err := domain.Validate(input.Body); err != nil {
			return nil, newError(http.StatusBadRequest, "Dados de cadastro inválidos.")
		}
		u, ok := s.register(input.Body)
		if !ok {
			return nil, newError(http.StatusConflict, "Este e-mail já está em uso.")
		}
		return &struct {
			Body SignUpResponse `json:"body"`
		}{Body: SignUpResponse{User: u}}, nil
	})
}

func registerUsers(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/api/users/{id}",
		Summary:     "Fetch a user profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body domain.UserProfile `json:"body"`
	}, error) {
		u, ok := s.User(input.ID)
		if !ok {
			return nil, newError(http.StatusNotFound, "Usuário não encontrado.")
		}
		return &struct {
			Body domain.UserProfile `json:"body"`
		}{Body: u}, nil
	})
}
