package audit

import (
	"context"
	"fmt"
	"strings"
)

// Check is one independent probe.
type Check interface {
	Run(ctx context.Context, target string) (Result, error)
}

// CheckFunc adapts a function to the Check interface.
type CheckFunc func(ctx context.Context, target string) (Result, error)

// Run calls f.
func (f CheckFunc) Run(ctx context.Context, target string) (Result, error) {
	return f(ctx, target)
}

// InputPolicy selects which form of the user's input a check receives.
type InputPolicy int

const (
	// InputRoot passes the normalized scheme://host/ root.
	InputRoot InputPolicy = iota
	// InputRaw passes the argument exactly as the user typed it.
	InputRaw
)

func (p InputPolicy) String() string {
	switch p {
	case InputRoot:
		return "root"
	case InputRaw:
		return "raw"
	default:
		return fmt.Sprintf("InputPolicy(%d)", int(p))
	}
}

// Registration binds a name to a check.
type Registration struct {
	Name  string
	Check Check
	Input InputPolicy
}

// Registry is the ordered list of checks a run executes.
type Registry []Registration

// Target carries both forms of the audited site.
type Target struct {
	Root string
	Raw  string
}

func (t Target) input(p InputPolicy) string {
	if p == InputRaw {
		return t.Raw
	}
	return t.Root
}

// Names lists registration names in order.
func (r Registry) Names() []string {
	names := make([]string, len(r))
	for i, reg := range r {
		names[i] = reg.Name
	}
	return names
}

// Without returns a copy of r minus the named registrations. Order is kept.
func (r Registry) Without(names ...string) Registry {
	if len(names) == 0 {
		return append(Registry(nil), r...)
	}
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[strings.TrimSpace(n)] = struct{}{}
	}
	out := make(Registry, 0, len(r))
	for _, reg := range r {
		if _, ok := drop[reg.Name]; ok {
			continue
		}
		out = append(out, reg)
	}
	return out
}

// Validate rejects empty or duplicate names and nil checks.
func (r Registry) Validate() error {
	seen := make(map[string]struct{}, len(r))
	for i, reg := range r {
		if reg.Name == "" {
			return fmt.Errorf("registration %d: empty name", i)
		}
		if reg.Check == nil {
			return fmt.Errorf("registration %q: nil check", reg.Name)
		}
		if _, ok := seen[reg.Name]; ok {
			return fmt.Errorf("registration %q: duplicate name", reg.Name)
		}
		seen[reg.Name] = struct{}{}
	}
	return nil
}
