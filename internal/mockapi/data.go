package mockapi

import (
	"slices"
	"strings"
	"time"

	"hireline/internal/domain"
)

func (s *Server) allocID() int64 {
	s.nextID++
	return s.nextID
}

// AddUser seeds a user. A zero profile id is assigned. Returns the stored profile.
func (s *Server) AddUser(p domain.UserProfile, password string) domain.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.allocID()
	}
	s.users = append(s.users, &user{profile: p, password: password})
	return p
}

// AddJob seeds a job posting. A zero id is assigned.
func (s *Server) AddJob(job domain.JobPosting) domain.JobPosting {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == 0 {
		job.ID = s.allocID()
	}
	if job.Status == "" {
		job.Status = domain.JobInProgress
	}
	s.jobs = append(s.jobs, job)
	return job
}

// AddCandidate seeds a candidate. A zero id is assigned and a zero status becomes Triagem.
func (s *Server) AddCandidate(c domain.Candidate) domain.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.allocID()
	}
	if c.Status.Value == "" {
		c.Status = domain.NewCandidateStatus(domain.StatusScreening)
	}
	if c.Jobs == nil {
		c.Jobs = []domain.LinkRef{}
	}
	s.candidates = append(s.candidates, c)
	return c
}

// AddSchedule seeds an interview schedule. A zero id is assigned.
func (s *Server) AddSchedule(sc domain.Schedule) domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc.ID == 0 {
		sc.ID = s.allocID()
	}
	s.schedules = append(s.schedules, sc)
	return sc
}

// Candidate returns the server's copy of a candidate.
func (s *Server) Candidate(id int64) (domain.Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.candidates, func(c domain.Candidate) bool { return c.ID == id })
	if i < 0 {
		return domain.Candidate{}, false
	}
	return s.candidates[i], true
}

// Job returns the server's copy of a job posting.
func (s *Server) Job(id int64) (domain.JobPosting, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.jobIndex(id)
	if i < 0 {
		return domain.JobPosting{}, false
	}
	return s.renderJob(s.jobs[i]), true
}

func (s *Server) User(id int64) (domain.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.profile.ID == id {
			return u.profile, true
		}
	}
	return domain.UserProfile{}, false
}

func (s *Server) jobIndex(id int64) int {
	return slices.IndexFunc(s.jobs, func(j domain.JobPosting) bool { return j.ID == id })
}

// renderJob fills the candidate counters the way the API computes them.
func (s *Server) renderJob(job domain.JobPosting) domain.JobPosting {
	job.CandidateCount, job.ApprovedCount, job.RejectedCount = 0, 0, 0
	for _, c := range s.candidates {
		if !c.AppliedTo(job.ID) {
			continue
		}
		job.CandidateCount++
		switch c.Status.Value {
		case domain.StatusApproved:
			job.ApprovedCount++
		case domain.StatusRejected:
			job.RejectedCount++
		}
	}
	return job
}

func ownedBy(job domain.JobPosting, userID int64) bool {
	return slices.ContainsFunc(job.Owner, func(l domain.LinkRef) bool { return l.ID == userID })
}

func (s *Server) dataFor(userID int64) (DataResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := slices.ContainsFunc(s.users, func(u *user) bool { return u.profile.ID == userID })
	out := DataResponse{Jobs: []domain.JobPosting{}, Candidates: []domain.Candidate{}}
	owned := map[int64]bool{}
	for i := len(s.jobs) - 1; i >= 0; i-- {
		if ownedBy(s.jobs[i], userID) {
			owned[s.jobs[i].ID] = true
			out.Jobs = append(out.Jobs, s.renderJob(s.jobs[i]))
		}
	}
	if !known && len(out.Jobs) == 0 {
		return DataResponse{}, false
	}
	for _, c := range s.candidates {
		if slices.ContainsFunc(c.Jobs, func(l domain.LinkRef) bool { return owned[l.ID] }) {
			out.Candidates = append(out.Candidates, c)
		}
	}
	return out, true
}

func (s *Server) schedulesFor(userID int64) []domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := map[int64]bool{}
	for _, j := range s.jobs {
		if ownedBy(j, userID) {
			owned[j.ID] = true
		}
	}
	out := []domain.Schedule{}
	for _, sc := range s.schedules {
		if slices.ContainsFunc(sc.Job, func(l domain.LinkRef) bool { return owned[l.ID] }) {
			out = append(out, sc)
		}
	}
	return out
}

func (s *Server) setCandidateStatus(id int64, v domain.StatusValue) (domain.Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.candidates, func(c domain.Candidate) bool { return c.ID == id })
	if i < 0 {
		return domain.Candidate{}, false
	}
	s.candidates[i].Status = domain.NewCandidateStatus(v)
	return s.candidates[i], true
}

func (s *Server) createJob(in domain.JobInput) domain.JobPosting {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := in.ApplyTo(domain.JobPosting{
		ID:        s.allocID(),
		CreatedAt: s.cfg.Now().UTC().Format(time.RFC3339),
		Status:    domain.JobInProgress,
		Owner:     []domain.LinkRef{},
	})
	for _, id := range in.Owner {
		job.Owner = append(job.Owner, domain.LinkRef{ID: id})
	}
	s.jobs = append(s.jobs, job)
	return s.renderJob(job)
}

func (s *Server) updateJob(id int64, in domain.JobInput) (domain.JobPosting, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.jobIndex(id)
	if i < 0 {
		return domain.JobPosting{}, false
	}
	s.jobs[i] = in.ApplyTo(s.jobs[i])
	return s.renderJob(s.jobs[i]), true
}

func (s *Server) deleteJob(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.jobIndex(id)
	if i < 0 {
		return false
	}
	s.jobs = slices.Delete(s.jobs, i, i+1)
	return true
}

func (s *Server) authenticate(email, password string) (domain.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.profile.Email, email) && u.password == password {
			return u.profile, true
		}
	}
	return domain.UserProfile{}, false
}

func (s *Server) register(in domain.SignUpCredentials) (domain.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.profile.Email, in.Email) {
			return domain.UserProfile{}, false
		}
	}
	p := domain.UserProfile{
		ID:      s.allocID(),
		Name:    in.Name,
		Email:   in.Email,
		Phone:   in.Phone,
		Company: in.Company,
	}
	s.users = append(s.users, &user{profile: p, password: in.Password})
	return p, true
}

// SeedDemo loads a small recruiter workspace: demo@hireline.dev / hireline.
func (s *Server) SeedDemo() domain.UserProfile {
	u := s.AddUser(domain.UserProfile{Name: "Recrutadora Demo", Email: "demo@hireline.dev", Company: "Hireline"}, "hireline")
	owner := []domain.LinkRef{{ID: u.ID, Value: u.Name}}
	backend := s.AddJob(domain.JobPosting{Title: "Desenvolvedor Backend Go", Description: "APIs e integrações", Address: "Remoto", RequiredSkills: "Go, SQL", Owner: owner, CreatedAt: "2024-05-02T12:00:00Z"})
	design := s.AddJob(domain.JobPosting{Title: "Designer de Produto", Description: "Fluxos de recrutamento", Address: "São Paulo", Owner: owner, CreatedAt: "2024-05-10T12:00:00Z"})
	link := func(j domain.JobPosting) []domain.LinkRef { return []domain.LinkRef{{ID: j.ID, Value: j.Title}} }
	ana := s.AddCandidate(domain.Candidate{Name: "Ana Souza", Score: 92, Jobs: link(backend)})
	s.AddCandidate(domain.Candidate{Name: "Bruno Lima", Score: 71, Jobs: link(backend), Status: domain.NewCandidateStatus(domain.StatusInterview)})
	s.AddCandidate(domain.Candidate{Name: "Carla Dias", Score: 85, Jobs: link(design), Status: domain.NewCandidateStatus(domain.StatusApproved)})
	start := time.Date(2024, 5, 20, 14, 0, 0, 0, time.UTC)
	s.AddSchedule(domain.Schedule{
		Title:     "Entrevista técnica",
		Start:     start,
		End:       start.Add(time.Hour),
		Candidate: []domain.LinkRef{{ID: ana.ID, Value: ana.Name}},
		Job:       link(backend),
	})
	return u
}
