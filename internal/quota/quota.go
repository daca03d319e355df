package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrMisconfigured means the authority cannot be consulted at all, e.g. it has no endpoint
var ErrMisconfigured = errors.New("quota authority misconfigured")

// Authority names
const (
	AuthorityUnlimited = "unlimited"
	AuthorityStatic    = "static"
	AuthorityHTTP      = "http"
)

// Decision is the answer to an admission check
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Used      int    `json:"used,omitempty"`
	Remaining int    `json:"remaining,omitempty"`
}

// Authority decides whether billable files may be indexed and records usage
type Authority interface {
	// CanAdmit asks whether n more billable files may be indexed
	CanAdmit(ctx context.Context, n int) (Decision, error)
	// ReportUsage records n billable files as indexed
	ReportUsage(ctx context.Context, n int) error
	Name() string
}

// Unlimited admits everything
type Unlimited struct{}

func (Unlimited) CanAdmit(context.Context, int) (Decision, error) {
	return Decision{Allowed: true}, nil
}

func (Unlimited) ReportUsage(context.Context, int) error { return nil }
func (Unlimited) Name() string                          { return AuthorityUnlimited }

// Static enforces an in-memory limit. A limit of zero or less admits everything.
type Static struct {
	mu    sync.Mutex
	limit int
	used  int
}

// NewStatic creates a static authority with used files already counted
func NewStatic(limit, used int) *Static {
	return &Static{limit: limit, used: used}
}

func (s *Static) Name() string { return AuthorityStatic }

func (s *Static) CanAdmit(_ context.Context, n int) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit <= 0 {
		return Decision{Allowed: true, Used: s.used}, nil
	}
	remaining := max(s.limit-s.used, 0)
	d := Decision{Limit: s.limit, Used: s.used, Remaining: remaining, Allowed: n <= remaining}
	if !d.Allowed {
		d.Reason = fmt.Sprintf("index limit reached: %d of %d media files used, %d requested", s.used, s.limit, n)
	}
	return d, nil
}

func (s *Static) ReportUsage(_ context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used += n
	return nil
}

// Used returns the usage recorded so far
func (s *Static) Used() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Config selects and configures an authority
type Config struct {
	Authority string
	Limit     int
	Used      int
	URL       string
	Token     string
}

// New builds the configured authority
func New(cfg Config) (Authority, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Authority)) {
	case AuthorityUnlimited, "":
		return Unlimited{}, nil
	case AuthorityStatic:
		return NewStatic(cfg.Limit, cfg.Used), nil
	case AuthorityHTTP:
		return NewHTTP(cfg.URL, cfg.Token), nil
	default:
		return nil, fmt.Errorf("unknown quota authority: %s", cfg.Authority)
	}
}
