package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"onboarding-gateway/pkg/platform/httputil"
	"onboarding-gateway/pkg/requestcontext"
)

const exceededMessage = "Demasiados intentos. Vuelve a intentarlo más tarde."

// ExceededResponse is the 429 body.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// Outcome labels for the decision counter.
const (
	outcomeAllowed  = "allowed"
	outcomeRejected = "rejected"
	outcomeError    = "store_error"
)

// NewDecisionCounter registers onboarding_rate_limit_decisions_total. Call
// once per process.
func NewDecisionCounter() *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onboarding_rate_limit_decisions_total",
		Help: "Rate-limit checks by class and outcome",
	}, []string{"class", "outcome"})
}

// Middleware enforces per-provider quotas on the expensive onboarding calls.
type Middleware struct {
	store     Store
	logger    *slog.Logger
	policies  map[Class]Policy
	disabled  bool
	decisions *prometheus.CounterVec
}

type Option func(*Middleware)

func WithPolicy(class Class, p Policy) Option {
	return func(m *Middleware) { m.policies[class] = p }
}

// WithDisabled makes every class a pass-through. Used by load tests.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) { m.disabled = disabled }
}

func WithDecisionCounter(c *prometheus.CounterVec) Option {
	return func(m *Middleware) { m.decisions = c }
}

func New(store Store, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{store: store, logger: logger, policies: DefaultPolicies()}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Warn("per-provider rate limits are off")
	}
	return m
}

// PerProvider counts calls against the authenticated provider's quota for
// class. Unauthenticated requests and unknown classes are not limited. When
// the store fails the request goes through.
func (m *Middleware) PerProvider(class Class) func(http.Handler) http.Handler {
	policy, limited := m.policies[class]
	limited = limited && policy.Limit > 0 && !m.disabled

	return func(next http.Handler) http.Handler {
		if !limited {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			providerID := requestcontext.ProviderID(ctx)
			if providerID.IsNil() {
				next.ServeHTTP(w, r)
				return
			}

			res, err := m.store.Allow(ctx, key(class, providerID.String()), policy.Limit, policy.Window)
			switch {
			case err != nil:
				m.count(class, outcomeError)
				m.logger.ErrorContext(ctx, "rate limit store unavailable, allowing request",
					"error", err,
					"class", class,
					"provider_id", providerID.String(),
				)
			case !res.Allowed:
				m.count(class, outcomeRejected)
				m.logger.InfoContext(ctx, "rate limit exceeded",
					"class", class,
					"provider_id", providerID.String(),
					"retry_after", res.RetryAfter,
				)
				setQuotaHeaders(w.Header(), res)
				w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter))
				httputil.WriteJSON(w, http.StatusTooManyRequests, ExceededResponse{
					Error:      "rate_limit_exceeded",
					Message:    exceededMessage,
					RetryAfter: res.RetryAfter,
				})
				return
			default:
				m.count(class, outcomeAllowed)
				setQuotaHeaders(w.Header(), res)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) count(class Class, outcome string) {
	if m.decisions != nil {
		m.decisions.WithLabelValues(string(class), outcome).Inc()
	}
}

func setQuotaHeaders(h http.Header, res Result) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}
