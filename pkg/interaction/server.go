package interaction

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/wire"
)

// HandlerFunc serves one command. The payload is nil when the request
// carried none. A returned error becomes a {status: "error"} reply.
type HandlerFunc func(ctx context.Context, payload wire.Document) (wire.Document, error)

// RouterConfig configures a Router.
type RouterConfig struct {
	// Token is the shared secret expected in the auth request. Empty
	// disables authentication.
	Token string

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger
}

// Session is the per-connection protocol state.
type Session struct {
	mu            sync.Mutex
	authenticated bool
	commands      int
}

// Authenticated reports whether the auth exchange succeeded.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Commands returns how many commands were dispatched on this session.
func (s *Session) Commands() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands
}

// Router dispatches decoded requests to command handlers.
type Router struct {
	mu       sync.RWMutex
	token    string
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

// NewRouter creates a Router with no handlers.
func NewRouter(config RouterConfig) *Router {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		token:    config.Token,
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Handle registers the handler for name, replacing any earlier one.
func (r *Router) Handle(name string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Commands returns the registered command names in sorted order.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch handles one inbound frame and returns the reply document. When
// closeAfter is true the connection should be closed once the reply is sent.
//
// Until a session has authenticated, the only accepted request is {token};
// a wrong token is answered with an error and closeAfter.
func (r *Router) Dispatch(ctx context.Context, s *Session, frame []byte) (reply wire.Document, closeAfter bool) {
	req, err := wire.DecodeDocument(frame)
	if err != nil {
		r.logger.Warn("undecodable request", "error", err, "bytes", len(frame))
		return wire.ErrorResponse("invalid message format"), false
	}

	s.mu.Lock()
	authenticated := s.authenticated || r.token == ""
	s.mu.Unlock()

	if token, ok := req.String(wire.KeyToken); ok && !req.Has(wire.KeyCommand) {
		return r.authenticate(s, token)
	}
	if !authenticated {
		r.logger.Warn("command before authentication")
		return wire.ErrorResponse("not authenticated"), true
	}

	name, ok := req.String(wire.KeyCommand)
	if !ok || name == "" {
		return wire.ErrorResponse("missing command"), false
	}

	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		r.logger.Info("unknown command", "command", name)
		return wire.ErrorResponse(fmt.Sprintf("unknown command: %s", name)), false
	}

	payload, _ := req.Map(wire.KeyPayload)

	s.mu.Lock()
	s.commands++
	s.mu.Unlock()

	resp, err := h(ctx, payload)
	if err != nil {
		r.logger.Warn("command failed", "command", name, "error", err)
		return wire.ErrorResponse(err.Error()), false
	}
	if resp == nil {
		resp = wire.Document{}
	}
	return resp, false
}

func (r *Router) authenticate(s *Session, token string) (wire.Document, bool) {
	if r.token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(r.token)) != 1 {
		r.logger.Warn("authentication failed")
		return wire.ErrorResponse("authentication failed"), true
	}
	s.mu.Lock()
	s.authenticated = true
	s.mu.Unlock()
	return wire.Document{wire.KeyStatus: wire.StatusAuthenticated}, false
}
