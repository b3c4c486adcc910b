package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/xtruel/roma-map-revamp/internal/collections"
	"github.com/xtruel/roma-map-revamp/internal/platform/httpx"
	"github.com/xtruel/roma-map-revamp/internal/services"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
	healthStatusError    = "error"

	defaultReadinessTimeout = 3 * time.Second
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// ReadinessCheck probes one dependency. A nil Check is skipped.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	build    BuildInfo
	now      func() time.Time
	timeout  time.Duration
	checks   []ReadinessCheck
	statuses func() []services.CollectionStatus
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo sets the version metadata reported by both probes.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock injects a custom clock.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// WithReadinessChecks appends dependency probes run by /readyz.
func WithReadinessChecks(checks ...ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		h.checks = append(h.checks, checks...)
	}
}

// WithCollectionStatuses reports mirror states on /readyz.
func WithCollectionStatuses(fn func() []services.CollectionStatus) HealthOption {
	return func(h *HealthHandlers) {
		h.statuses = fn
	}
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		now:     time.Now,
		timeout: defaultReadinessTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.now().UTC()
	}
	return h
}

// Healthz reports liveness. It never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.basePayload(healthStatusOK))
}

// Readyz runs the readiness checks and reports collection states. A failed check answers 503;
// collections running on local data only degrade the status.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := healthStatusOK
	code := http.StatusOK
	checks := make(map[string]any, len(h.checks))
	for _, check := range h.checks {
		if check.Check == nil {
			continue
		}
		name := strings.TrimSpace(check.Name)
		if err := check.Check(ctx); err != nil {
			checks[name] = map[string]any{"status": healthStatusError, "error": err.Error()}
			status = healthStatusError
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = map[string]any{"status": healthStatusOK}
	}

	var colls []services.CollectionStatus
	if h.statuses != nil {
		colls = h.statuses()
	}
	for _, c := range colls {
		if c.State == collections.StateDegradedLocal && status == healthStatusOK {
			status = healthStatusDegraded
		}
	}

	payload := h.basePayload(status)
	payload["checks"] = checks
	if colls == nil {
		colls = []services.CollectionStatus{}
	}
	payload["collections"] = colls
	httpx.WriteJSON(w, code, payload)
}

func (h *HealthHandlers) basePayload(status string) map[string]any {
	now := h.now().UTC()
	payload := map[string]any{
		"status":    status,
		"timestamp": now.Format(time.RFC3339),
		"uptime":    now.Sub(h.build.StartedAt).Round(time.Second).String(),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	return payload
}
