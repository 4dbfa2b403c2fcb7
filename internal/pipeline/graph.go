package pipeline

import (
	"fmt"
	"strings"

	"github.com/nao1215/sitescope/internal/model"
)

// Plan is a validated execution plan for one request.
type Plan struct {
	// Order is the reporting order: requested steps first, then pulled-in
	// dependencies in discovery order.
	Order []string

	// Waves groups steps so that every dependency of a step lies in an
	// earlier wave. Steps within a wave keep their Order position.
	Waves [][]string

	// Requested marks the steps named by the caller.
	Requested map[string]bool

	descriptors map[string]model.StepDescriptor
	steps       map[string]Step
}

// Descriptor returns the descriptor of a planned step.
func (p *Plan) Descriptor(name string) model.StepDescriptor {
	return p.descriptors[name]
}

// BuildPlan expands names with their transitive dependencies and orders
// them into waves. Unknown steps and cycles reject the whole plan.
func BuildPlan(registry Registry, names []string) (*Plan, error) {
	if len(names) == 0 {
		return nil, ErrNoSteps
	}

	p := &Plan{
		Requested:   make(map[string]bool, len(names)),
		descriptors: make(map[string]model.StepDescriptor),
		steps:       make(map[string]Step),
	}
	for _, n := range names {
		if !p.Requested[n] {
			p.Requested[n] = true
			p.Order = append(p.Order, n)
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	var (
		state  = make(map[string]int)
		level  = make(map[string]int)
		pulled []string
		path   []string
	)

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s -> %s", model.ErrDependencyCycle, strings.Join(path, " -> "), name)
		}

		desc, step, ok := registry.Lookup(name)
		if !ok {
			if len(path) > 0 {
				return fmt.Errorf("%w: %q (required by %q)", model.ErrUnknownStep, name, path[len(path)-1])
			}
			return fmt.Errorf("%w: %q", model.ErrUnknownStep, name)
		}

		state[name] = visiting
		path = append(path, name)
		lvl := 0
		for _, dep := range desc.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
			if level[dep]+1 > lvl {
				lvl = level[dep] + 1
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		level[name] = lvl

		p.descriptors[name] = desc
		p.steps[name] = step
		if !p.Requested[name] {
			pulled = append(pulled, name)
		}
		return nil
	}

	for _, n := range p.Order {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	p.Order = append(p.Order, pulled...)

	maxLevel := 0
	for _, n := range p.Order {
		if level[n] > maxLevel {
			maxLevel = level[n]
		}
	}
	p.Waves = make([][]string, maxLevel+1)
	for _, n := range p.Order {
		p.Waves[level[n]] = append(p.Waves[level[n]], n)
	}
	return p, nil
}
