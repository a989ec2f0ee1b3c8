package version

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrNoConversionPath is returned when no chain of registered
	// converters connects the two versions.
	ErrNoConversionPath = errors.New("no conversion path between versions")

	// ErrConverterExists is returned when a converter for the same edge
	// is registered twice.
	ErrConverterExists = errors.New("converter already registered for this version pair")
)

// Converter rewrites a message payload from one schema version to the next.
type Converter interface {
	Convert(ctx context.Context, payload any) (any, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(ctx context.Context, payload any) (any, error)

func (f ConverterFunc) Convert(ctx context.Context, payload any) (any, error) {
	return f(ctx, payload)
}

// Path is a resolved conversion route.
type Path struct {
	// Steps are the converters to apply in order.
	Steps []Converter

	// Hops are the versions visited, starting at the source and ending
	// at the target.
	Hops []Version
}

// IsDirect reports whether the path is a single registered step.
func (p Path) IsDirect() bool {
	return len(p.Steps) == 1
}

// Apply runs the payload through every step in order.
func (p Path) Apply(ctx context.Context, payload any) (any, error) {
	for i, step := range p.Steps {
		converted, err := step.Convert(ctx, payload)
		if err != nil {
			return nil, fmt.Errorf("converting %s to %s: %w", p.Hops[i], p.Hops[i+1], err)
		}
		payload = converted
	}
	return payload, nil
}

type edge struct {
	to        Version
	converter Converter
}

// Registry holds converters per message type and resolves multi-step routes
// by breadth-first search, so the route with the fewest conversions wins.
// Cyclic registrations are safe: each version is visited once per lookup.
type Registry struct {
	mu    sync.RWMutex
	edges map[string]map[Version][]edge
}

// NewRegistry creates an empty converter registry.
func NewRegistry() *Registry {
	return &Registry{edges: make(map[string]map[Version][]edge)}
}

// Register adds a one-step converter for messageType from one version to
// another.
func (r *Registry) Register(messageType string, from, to Version, converter Converter) error {
	if converter == nil {
		return errors.New("nil converter")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byVersion, ok := r.edges[messageType]
	if !ok {
		byVersion = make(map[Version][]edge)
		r.edges[messageType] = byVersion
	}
	for _, e := range byVersion[from] {
		if e.to == to {
			return fmt.Errorf("%w: %s %s to %s", ErrConverterExists, messageType, from, to)
		}
	}
	byVersion[from] = append(byVersion[from], edge{to: to, converter: converter})
	return nil
}

// Resolve finds the shortest conversion path for messageType from one
// version to another. Equal versions resolve to an empty path.
func (r *Registry) Resolve(messageType string, from, to Version) (Path, error) {
	if from == to {
		return Path{Hops: []Version{from}}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	byVersion := r.edges[messageType]
	if byVersion == nil {
		return Path{}, fmt.Errorf("%w: %s %s to %s", ErrNoConversionPath, messageType, from, to)
	}

	visited := map[Version]bool{from: true}
	queue := []*searchNode{{version: from}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, e := range byVersion[current.version] {
			if visited[e.to] {
				continue
			}
			next := &searchNode{version: e.to, parent: current, via: e.converter}
			if e.to == to {
				return next.path(), nil
			}
			visited[e.to] = true
			queue = append(queue, next)
		}
	}
	return Path{}, fmt.Errorf("%w: %s %s to %s", ErrNoConversionPath, messageType, from, to)
}

// Convert resolves the path and applies it to payload.
func (r *Registry) Convert(ctx context.Context, messageType string, from, to Version, payload any) (any, error) {
	path, err := r.Resolve(messageType, from, to)
	if err != nil {
		return nil, err
	}
	return path.Apply(ctx, payload)
}

// searchNode is one BFS frontier entry, linked back toward the source.
type searchNode struct {
	version Version
	parent  *searchNode
	via     Converter
}

func (n *searchNode) path() Path {
	var steps []Converter
	var hops []Version
	for ; n != nil; n = n.parent {
		hops = append(hops, n.version)
		if n.via != nil {
			steps = append(steps, n.via)
		}
	}
	slices.Reverse(steps)
	slices.Reverse(hops)
	return Path{Steps: steps, Hops: hops}
}
