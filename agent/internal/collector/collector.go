package collector

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

// Collector names, also used as the Observation.Collector value.
const (
	NameVPS      = "vps"
	NameDocker   = "docker"
	NameEC2      = "ec2"
	NameAPI      = "api"
	NameDatabase = "database"
	NameS3       = "s3"
	NameLLM      = "llm"
	NameTLS      = "tls"
)

// maxParallel bounds concurrent probes within one collector.
const maxParallel = 8

// Collector probes every target of one kind.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]types.Observation, error)
}

// Registry holds collectors in registration order.
type Registry struct {
	order []Collector
	names map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register appends c. Names must be unique.
func (r *Registry) Register(c Collector) error {
	if _, dup := r.names[c.Name()]; dup {
		return fmt.Errorf("collector: %q already registered", c.Name())
	}
	r.names[c.Name()] = struct{}{}
	r.order = append(r.order, c)
	return nil
}

// Collectors returns the registered collectors in order.
func (r *Registry) Collectors() []Collector {
	out := make([]Collector, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered collectors.
func (r *Registry) Len() int { return len(r.order) }

// fanOut runs fn over items concurrently and returns results in item order.
func fanOut[T, R any](ctx context.Context, items []T, fn func(context.Context, T) R) []R {
	out := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, it := range items {
		g.Go(func() error {
			out[i] = fn(gctx, it)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func flatten(groups [][]types.Observation) []types.Observation {
	var out []types.Observation
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// round1 rounds to one decimal place for display metrics.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
