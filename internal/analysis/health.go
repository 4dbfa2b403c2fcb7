package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/nao1215/sitescope/internal/cache"
	"github.com/nao1215/sitescope/internal/executor"
)

// Health statuses.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// Health is the readiness of the Service and its components.
type Health struct {
	Status     string            `json:"status"`
	Components []ComponentHealth `json:"components"`
}

// ComponentHealth is the readiness of one component.
type ComponentHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Health checks every component. The Service is degraded when any
// component is not ready; it keeps serving requests either way.
func (s *Service) Health(ctx context.Context) Health {
	components := []ComponentHealth{
		s.cacheHealth(ctx),
		{
			Name:   "rate_limiter",
			Ready:  true,
			Detail: fmt.Sprintf("%d clients tracked", s.limiter.Clients()),
		},
		s.stepsHealth(),
	}

	for _, b := range s.exec.Breakers().States() {
		components = append(components, ComponentHealth{
			Name:   "circuit:" + b.Endpoint,
			Ready:  b.State != executor.StateOpen.String(),
			Detail: b.State,
		})
	}

	if p, ok := s.sink.(pinger); ok {
		c := ComponentHealth{Name: "sink", Ready: true}
		if err := p.Ping(ctx); err != nil {
			c.Ready = false
			c.Detail = err.Error()
		}
		components = append(components, c)
	}

	h := Health{Status: HealthOK, Components: components}
	for _, c := range components {
		if !c.Ready {
			h.Status = HealthDegraded
			break
		}
	}
	return h
}

func (s *Service) cacheHealth(ctx context.Context) ComponentHealth {
	c := ComponentHealth{Name: "cache", Ready: true, Detail: s.cache.Backend()}
	if err := s.cache.Ping(ctx); err != nil {
		c.Ready = false
		c.Detail = s.cache.Backend() + ": " + err.Error()
	}
	return c
}

// stepsHealth checks that the full step set can be planned.
func (s *Service) stepsHealth() ComponentHealth {
	plan, err := s.orchestrator.Plan(s.cfg.Pipeline.FullSteps)
	if err != nil {
		return ComponentHealth{Name: "steps", Detail: err.Error()}
	}
	return ComponentHealth{Name: "steps", Ready: true, Detail: fmt.Sprintf("%d steps", len(plan.Order))}
}

// Stats is a snapshot of the Service counters.
type Stats struct {
	// Requests counts every Analyze call, rejected ones included.
	Requests int64 `json:"requests"`

	// Rejected counts requests refused by validation or rate limiting.
	Rejected int64 `json:"rejected"`

	// RateLimited counts requests refused by the rate limiter.
	RateLimited int64 `json:"rate_limited"`

	// CacheHits counts requests served from the result cache.
	CacheHits int64 `json:"cache_hits"`

	// CacheHitRate is CacheHits over whole-result cache lookups.
	CacheHitRate float64 `json:"cache_hit_rate"`

	// Cache holds the backend counters, per-step lookups included.
	Cache cache.Stats `json:"cache"`

	// Steps holds outcomes of freshly executed steps, sorted by name.
	Steps []StepStats `json:"steps"`

	// Breakers holds the circuit state of every endpoint used so far.
	Breakers []executor.EndpointState `json:"breakers"`
}

// StepStats counts the outcomes of one step.
type StepStats struct {
	Name        string  `json:"name"`
	Total       int64   `json:"total"`
	Succeeded   int64   `json:"succeeded"`
	Failed      int64   `json:"failed"`
	Skipped     int64   `json:"skipped"`
	SuccessRate float64 `json:"success_rate"`
}

// Stats returns a snapshot of the counters.
func (s *Service) Stats() Stats {
	st := Stats{
		Requests:    s.requests.Load(),
		Rejected:    s.rejected.Load(),
		RateLimited: s.limiter.Rejections(),
		CacheHits:   s.cacheHits.Load(),
		Cache:       s.cache.Stats(context.Background()),
		Breakers:    s.exec.Breakers().States(),
	}
	if lookups := s.lookups.Load(); lookups > 0 {
		st.CacheHitRate = float64(st.CacheHits) / float64(lookups)
	}

	s.mu.Lock()
	for name, c := range s.steps {
		ss := StepStats{
			Name:      name,
			Total:     c.total,
			Succeeded: c.succeeded,
			Failed:    c.failed,
			Skipped:   c.skipped,
		}
		if c.total > 0 {
			ss.SuccessRate = float64(c.succeeded) / float64(c.total)
		}
		st.Steps = append(st.Steps, ss)
	}
	s.mu.Unlock()

	sort.Slice(st.Steps, func(i, j int) bool { return st.Steps[i].Name < st.Steps[j].Name })
	return st
}
