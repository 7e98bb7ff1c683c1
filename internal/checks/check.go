package checks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/kosty-cloud/kosty/internal/models"
)

// Options carries per-target inspection parameters.
type Options struct {
	// AccountID is the resolved AWS account being inspected.
	AccountID string

	// Region is the target region.
	Region string

	// IdleDays is the inactivity window before a resource counts as idle.
	IdleDays int
}

// Check is one read-only service inspection: list resources, apply a
// threshold, return findings. Checks must be stateless, safe for concurrent
// use, and must never mutate scanned infrastructure. They do not attach cost
// figures; the quantifier does that downstream.
type Check interface {
	// Service returns the registry key (e.g. "ec2").
	Service() string

	// Name returns a short human-readable label.
	Name() string

	// Inspect runs the check against one region using the supplied session.
	Inspect(ctx context.Context, cfg aws.Config, opts Options) ([]models.Finding, error)
}

// Registry maps service names to their checks. Evaluation order follows
// registration order. Register panics on duplicate service keys to catch
// wiring mistakes at startup.
type Registry struct {
	ordered []Check
	index   map[string]Check
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]Check)}
}

// Register adds a check. Panics if the service key is already registered.
func (r *Registry) Register(c Check) {
	if _, exists := r.index[c.Service()]; exists {
		panic(fmt.Sprintf("duplicate check service: %q", c.Service()))
	}
	r.ordered = append(r.ordered, c)
	r.index[c.Service()] = c
}

// Get returns the check registered for service.
func (r *Registry) Get(service string) (Check, bool) {
	c, ok := r.index[service]
	return c, ok
}

// Services returns all registered service keys in registration order.
func (r *Registry) Services() []string {
	out := make([]string, 0, len(r.ordered))
	for _, c := range r.ordered {
		out = append(out, c.Service())
	}
	return out
}

// All returns all registered checks in registration order.
func (r *Registry) All() []Check {
	return r.ordered
}

// DefaultRegistry returns a registry with every built-in check wired to real
// SDK clients.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewEC2Check())
	r.Register(NewEBSCheck())
	r.Register(NewEIPCheck())
	r.Register(NewS3Check())
	r.Register(NewRDSCheck())
	r.Register(NewLBCheck())
	r.Register(NewIAMCheck())
	return r
}

// Pricing hint keys set in Finding.Details and read by the cost quantifier.
const (
	DetailResourceType = "resource_type"
	DetailResourceSize = "resource_size"
)
