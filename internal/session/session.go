package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hireline/internal/domain"
	"hireline/internal/kv"
	hirelinesdk "hireline/sdk/go"
)

// Persisted keys.
const (
	KeyProfile = "userProfile"
	KeyToken   = "authToken"
)

// Messages used when the server gives no reason.
const (
	DefaultSignInError  = "login failed, check your credentials"
	DefaultSignUpError  = "sign up failed, try again"
	DefaultRefetchError = "could not refresh the user profile"
)

var ErrNotAuthenticated = errors.New("not authenticated")

type State int

const (
	StateUninitialized State = iota
	StateRehydrating
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateRehydrating:
		return "rehydrating"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "uninitialized"
	}
}

// Gateway is the part of the remote API the session needs.
type Gateway interface {
	Get(ctx context.Context, path string) (*http.Response, error)
	Post(ctx context.Context, path string, body any) (*http.Response, error)
}

type tokenSetter interface {
	SetBearerToken(string)
}

type Options struct {
	Logger *log.Logger
	Now    func() time.Time
	// OnToken receives the bearer token on sign-in, rehydration and sign-out.
	// When nil and the gateway has SetBearerToken, that is used.
	OnToken func(string)
}

// Session owns the signed-in identity and its persisted copy.
type Session struct {
	gw      Gateway
	kv      kv.Store
	logger  *log.Logger
	now     func() time.Time
	onToken func(string)

	mu      sync.RWMutex
	state   State
	profile *domain.UserProfile
	token   string
	loading bool
	err     string
}

func New(gw Gateway, store kv.Store, opts Options) *Session {
	s := &Session{gw: gw, kv: store, logger: opts.Logger, now: opts.Now, onToken: opts.OnToken}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.onToken == nil {
		if ts, ok := gw.(tokenSetter); ok {
			s.onToken = ts.SetBearerToken
		}
	}
	return s
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsAuthenticated() bool { return s.State() == StateAuthenticated }

// IsLoading is true while rehydrating or while a sign-in/sign-up call is in flight.
func (s *Session) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading || s.state == StateUninitialized || s.state == StateRehydrating
}

// Error is the message of the last failed sign-in or sign-up, or "".
func (s *Session) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Session) Profile() (domain.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return domain.UserProfile{}, false
	}
	return *s.profile, true
}

// UserID returns the signed-in user's id.
func (s *Session) UserID() (int64, bool) {
	p, ok := s.Profile()
	return p.ID, ok
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Rehydrate restores the identity persisted by a previous sign-in.
// Any problem reading it leaves the session anonymous.
func (s *Session) Rehydrate(ctx context.Context) {
	s.mu.Lock()
	s.state = StateRehydrating
	s.mu.Unlock()

	profile, token, err := s.readPersisted(ctx)
	if err != nil {
		s.logger.Printf("session: rehydrate: %v", err)
	}

	s.mu.Lock()
	s.profile = profile
	s.token = token
	if profile != nil {
		s.state = StateAuthenticated
	} else {
		s.state = StateAnonymous
	}
	s.mu.Unlock()
	s.pushToken(token)
}

func (s *Session) readPersisted(ctx context.Context) (*domain.UserProfile, string, error) {
	raw, ok, err := s.kv.Get(ctx, KeyProfile)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", KeyProfile, err)
	}
	if !ok {
		return nil, "", nil
	}
	var p domain.UserProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", KeyProfile, err)
	}
	if err := domain.Validate(p); err != nil {
		return nil, "", fmt.Errorf("invalid %s: %w", KeyProfile, err)
	}
	token, ok, err := s.kv.Get(ctx, KeyToken)
	if err != nil || !ok {
		return &p, "", err
	}
	expired, err := s.tokenExpired(token)
	if err != nil {
		s.logger.Printf("session: ignoring unreadable token: %v", err)
		return &p, "", nil
	}
	if expired {
		if err := s.kv.Clear(ctx); err != nil {
			s.logger.Printf("session: clear expired session: %v", err)
		}
		return nil, "", errors.New("token expired")
	}
	return &p, token, nil
}

// tokenExpired reads the exp claim without verifying the signature; the server does that.
func (s *Session) tokenExpired(token string) (bool, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false, err
	}
	return exp != nil && !exp.After(s.now()), nil
}

type loginResponse struct {
	User  domain.UserProfile `json:"user"`
	Token string             `json:"token,omitempty"`
}

// SignIn authenticates and persists the returned identity.
// On failure the state is unchanged and Error reports the reason.
func (s *Session) SignIn(ctx context.Context, creds domain.LoginCredentials) error {
	s.begin()
	if err := domain.Validate(creds); err != nil {
		return s.fail(fmt.Errorf("sign in: %w", err), err.Error())
	}
	var out loginResponse
	if err := s.call(ctx, "/api/auth/login", creds, &out); err != nil {
		return s.fail(fmt.Errorf("sign in: %w", err), messageOr(err, DefaultSignInError))
	}
	if err := s.persist(ctx, out.User, out.Token); err != nil {
		return s.fail(fmt.Errorf("sign in: %w", err), DefaultSignInError)
	}

	s.mu.Lock()
	p := out.User
	s.profile = &p
	s.token = out.Token
	s.state = StateAuthenticated
	s.loading = false
	s.mu.Unlock()
	s.pushToken(out.Token)
	return nil
}

// SignUp registers a user. It neither persists nor signs in.
func (s *Session) SignUp(ctx context.Context, creds domain.SignUpCredentials) (domain.UserProfile, error) {
	s.begin()
	if err := domain.Validate(creds); err != nil {
		return domain.UserProfile{}, s.fail(fmt.Errorf("sign up: %w", err), err.Error())
	}
	var out loginResponse
	if err := s.call(ctx, "/api/auth/signup", creds, &out); err != nil {
		return domain.UserProfile{}, s.fail(fmt.Errorf("sign up: %w", err), messageOr(err, DefaultSignUpError))
	}
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
	return out.User, nil
}

// SignOut forgets the identity and clears all persisted session keys.
func (s *Session) SignOut(ctx context.Context) error {
	err := s.kv.Clear(ctx)
	s.mu.Lock()
	s.profile = nil
	s.token = ""
	s.err = ""
	s.state = StateAnonymous
	s.mu.Unlock()
	s.pushToken("")
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// RefetchProfile reloads the profile from the server. On failure the cached
// profile is kept and the error is logged and returned.
func (s *Session) RefetchProfile(ctx context.Context) error {
	id, ok := s.UserID()
	if !ok {
		s.logger.Printf("session: refetch profile without a signed-in user")
		return ErrNotAuthenticated
	}
	p, err := s.fetchProfile(ctx, id)
	if err == nil {
		err = s.persist(ctx, p, s.Token())
	}
	if err != nil {
		s.logger.Printf("session: %s: %v", DefaultRefetchError, err)
		return fmt.Errorf("refetch profile: %w", err)
	}
	s.mu.Lock()
	if s.profile != nil && s.profile.ID == id {
		s.profile = &p
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) fetchProfile(ctx context.Context, id int64) (domain.UserProfile, error) {
	resp, err := s.gw.Get(ctx, fmt.Sprintf("/api/users/%d", id))
	if err != nil {
		return domain.UserProfile{}, err
	}
	defer resp.Body.Close()
	if err := hirelinesdk.CheckResponse(resp); err != nil {
		return domain.UserProfile{}, err
	}
	var p domain.UserProfile
	if err := hirelinesdk.DecodeJSON(resp, &p); err != nil {
		return domain.UserProfile{}, err
	}
	if err := domain.Validate(p); err != nil {
		return domain.UserProfile{}, &hirelinesdk.MalformedResponseError{StatusCode: resp.StatusCode, Err: err}
	}
	return p, nil
}

// UpdateProfile applies fn to a copy of the profile and persists the result.
// The id cannot be changed.
func (s *Session) UpdateProfile(ctx context.Context, fn func(*domain.UserProfile)) error {
	cur, ok := s.Profile()
	if !ok {
		return ErrNotAuthenticated
	}
	next := cur
	fn(&next)
	next.ID = cur.ID
	if err := s.persist(ctx, next, s.Token()); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	s.mu.Lock()
	s.profile = &next
	s.mu.Unlock()
	return nil
}

func (s *Session) call(ctx context.Context, path string, body any, out *loginResponse) error {
	resp, err := s.gw.Post(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := hirelinesdk.CheckResponse(resp); err != nil {
		return err
	}
	if err := hirelinesdk.DecodeJSON(resp, out); err != nil {
		return err
	}
	if err := domain.Validate(out.User); err != nil {
		return &hirelinesdk.MalformedResponseError{StatusCode: resp.StatusCode, Err: fmt.Errorf("user: %w", err)}
	}
	return nil
}

func (s *Session) persist(ctx context.Context, p domain.UserProfile, token string) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, KeyProfile, string(raw)); err != nil {
		return err
	}
	if token == "" {
		return s.kv.Delete(ctx, KeyToken)
	}
	return s.kv.Set(ctx, KeyToken, token)
}

func (s *Session) begin() {
	s.mu.Lock()
	s.loading = true
	s.err = ""
	s.mu.Unlock()
}

func (s *Session) fail(err error, msg string) error {
	s.mu.Lock()
	s.loading = false
	s.err = msg
	s.mu.Unlock()
	return err
}

func (s *Session) pushToken(token string) {
	if s.onToken != nil {
		s.onToken(token)
	}
}

// messageOr returns the server-supplied reason in err, or def.
func messageOr(err error, def string) string {
	var apiErr *hirelinesdk.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return def
}
