package step

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nao1215/sitescope/internal/config"
	"github.com/nao1215/sitescope/internal/model"
	"github.com/nao1215/sitescope/internal/pipeline"
	"github.com/nao1215/sitescope/internal/provider"
)

// Registry holds the steps available to the orchestrator.
type Registry struct {
	mu    sync.RWMutex
	descs map[string]model.StepDescriptor
	steps map[string]pipeline.Step
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descs: make(map[string]model.StepDescriptor),
		steps: make(map[string]pipeline.Step),
	}
}

// Register adds a step under desc.Name.
func (r *Registry) Register(desc model.StepDescriptor, s pipeline.Step) error {
	if desc.Name != s.Name() {
		return fmt.Errorf("%w: %q vs %q", ErrNameMismatch, desc.Name, s.Name())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.descs[desc.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateStep, desc.Name)
	}
	r.descs[desc.Name] = desc
	r.steps[desc.Name] = s
	r.order = append(r.order, desc.Name)
	return nil
}

// Lookup implements pipeline.Registry.
func (r *Registry) Lookup(name string) (model.StepDescriptor, pipeline.Step, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descs[name]
	if !ok {
		return model.StepDescriptor{}, nil, false
	}
	return d, r.steps[name], true
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Descriptors returns the registered descriptors in registration order.
func (r *Registry) Descriptors() []model.StepDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.StepDescriptor, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.descs[n])
	}
	return out
}

// Build registers a prompt step for every descriptor. Descriptors without
// an Endpoint share the provider's breaker.
func Build(descs []model.StepDescriptor, p provider.Provider, contentLimit int, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := NewRegistry()
	for _, d := range descs {
		s, err := New(d.Name, p, contentLimit, logger)
		if err != nil {
			return nil, err
		}
		if d.Endpoint == "" {
			d.Endpoint = p.Name()
		}
		if err := r.Register(d, s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// New returns the prompt step registered under name.
func New(name string, p provider.Provider, contentLimit int, logger *slog.Logger) (pipeline.Step, error) {
	if contentLimit <= 0 {
		contentLimit = config.DefaultPromptContentLimit
	}
	base := promptStep{provider: p, contentLimit: contentLimit, logger: logger}
	switch name {
	case config.StepClassify:
		base.name, base.system, base.task, base.parse = name, classifySystem, classifyTask, parseClassification
	case config.StepSummary:
		base.name, base.system, base.task, base.parse = name, summarySystem, summaryTask, parseSummary
	case config.StepUXReview:
		base.name, base.system, base.task, base.parse = name, uxSystem, uxTask, parseUXReview
	case config.StepDesign:
		base.name, base.system, base.task, base.parse = name, designSystem, designTask, parseDesignAdvice
	default:
		return nil, fmt.Errorf("%w: %q", ErrNoImplementation, name)
	}
	return &base, nil
}
