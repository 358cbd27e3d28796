package mockapi

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type fault struct {
	status  int
	message string
	raw     string
	corrupt bool
}

// Gate blocks one matching request until released.
type Gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// Entered is closed once the held request has arrived.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets the held request continue. Safe to call more than once.
func (g *Gate) Release() { g.once.Do(func() { close(g.release) }) }

type controls struct {
	mu     sync.Mutex
	faults map[string][]fault
	holds  map[string][]*Gate
	calls  map[string]int
}

func newControls() controls {
	return controls{
		faults: map[string][]fault{},
		holds:  map[string][]*Gate{},
		calls:  map[string]int{},
	}
}

func key(method, path string) string { return method + " " + path }

// FailOnce makes the next METHOD path request answer status with {"error": msg}.
func (s *Server) FailOnce(method, path string, status int, msg string) {
	s.ctl.mu.Lock()
	defer s.ctl.mu.Unlock()
	k := key(method, path)
	s.ctl.faults[k] = append(s.ctl.faults[k], fault{status: status, message: msg})
}

// CorruptOnce makes the next METHOD path request answer 200 with body verbatim.
func (s *Server) CorruptOnce(method, path, body string) {
	s.ctl.mu.Lock()
	defer s.ctl.mu.Unlock()
	k := key(method, path)
	s.ctl.faults[k] = append(s.ctl.faults[k], fault{status: http.StatusOK, raw: body, corrupt: true})
}

// Hold parks the next METHOD path request until the returned gate is released.
func (s *Server) Hold(method, path string) *Gate {
	g := &Gate{entered: make(chan struct{}), release: make(chan struct{})}
	s.ctl.mu.Lock()
	defer s.ctl.mu.Unlock()
	k := key(method, path)
	s.ctl.holds[k] = append(s.ctl.holds[k], g)
	return g
}

// Calls reports how many METHOD path requests have arrived.
func (s *Server) Calls(method, path string) int {
	s.ctl.mu.Lock()
	defer s.ctl.mu.Unlock()
	return s.ctl.calls[key(method, path)]
}

func (s *Server) take(k string) (*Gate, *fault) {
	s.ctl.mu.Lock()
	defer s.ctl.mu.Unlock()
	s.ctl.calls[k]++
	var g *Gate
	if q := s.ctl.holds[k]; len(q) > 0 {
		g = q[0]
		s.ctl.holds[k] = q[1:]
	}
	var f *fault
	if q := s.ctl.faults[k]; len(q) > 0 {
		f = &q[0]
		s.ctl.faults[k] = q[1:]
	}
	return g, f
}

func (s *Server) controlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g, f := s.take(key(r.Method, r.URL.Path))
		if g != nil {
			close(g.entered)
			select {
			case <-g.release:
			case <-r.Context().Done():
				return
			}
		}
		if f == nil {
			next.ServeHTTP(w, r)
			return
		}
		if !f.corrupt {
			respondError(w, newError(f.status, f.message))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.raw))
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
