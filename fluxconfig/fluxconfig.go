// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

// Package fluxconfig loads phase and route-mask declarations from YAML, the declarative
// on-ramp a deployment of the engine needs beyond writing flux.PhaseDef literals by hand (spec
// §6 describes phase fields as data, not code). Executors themselves cannot be serialized, so
// Build takes them as a caller-supplied map keyed by phase name and only wires together what
// YAML can actually express: name, traversal, routes, and an optional exprfilter expression.
package fluxconfig

import (
	"fmt"
	"io"
	"os"

	"github.com/fluxgraph/flux"
	"github.com/fluxgraph/flux/exprfilter"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// PhaseSpec is one phase's declarative form.
type PhaseSpec struct {
	Name      string   `yaml:"name"`
	Traversal string   `yaml:"traversal"`
	Routes    []string `yaml:"routes"`
	Filter    string   `yaml:"filter,omitempty"`
}

// Config is the top-level document shape: a list of phase declarations.
type Config struct {
	Phases []PhaseSpec `yaml:"phases"`
}

// Load decodes a Config from r.
func Load(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("fluxconfig: decoding config: %w", err)
	}
	return &cfg, nil
}

// LoadFile reads and decodes a Config from the YAML file at path.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fluxconfig: opening %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

var traversalByName = map[string]flux.TraversalPolicy{
	"dirty-only":    flux.TraversalDirtyOnly,
	"dirty-and-down": flux.TraversalDirtyAndDown,
	"dirty-and-up":  flux.TraversalDirtyAndUp,
	"all":           flux.TraversalAll,
}

// Executor supplies the Go-side callback a YAML phase declaration cannot carry. Exactly one of
// Each/All must be set, matching flux.PhaseDef's own contract.
type Executor struct {
	Each func(flux.PhaseContext)
	All  func([]flux.PhaseContext)
}

// Build resolves every phase in c against executors (keyed by phase name) into flux.PhaseDefs
// ready for flux.New/flux.DefinePhases. It validates every phase before returning, collecting
// every invalid phase into a single *multierror.Error instead of failing on the first, so a
// misconfigured deployment gets the whole list of problems in one pass. Route masks are passed
// through unparsed; flux.New/flux.DefinePhases parse them.
func (c *Config) Build(executors map[string]Executor) ([]flux.PhaseDef, error) {
	var result *multierror.Error
	defs := make([]flux.PhaseDef, 0, len(c.Phases))

	for _, spec := range c.Phases {
		def, err := spec.resolve(executors)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		defs = append(defs, def)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return defs, nil
}

func (s PhaseSpec) resolve(executors map[string]Executor) (flux.PhaseDef, error) {
	if s.Name == "" {
		return flux.PhaseDef{}, fmt.Errorf("fluxconfig: phase entry missing a name")
	}

	traversal, ok := traversalByName[s.Traversal]
	if !ok {
		return flux.PhaseDef{}, fmt.Errorf("fluxconfig: phase %q: unknown traversal %q", s.Name, s.Traversal)
	}

	exec, ok := executors[s.Name]
	if !ok {
		return flux.PhaseDef{}, fmt.Errorf("fluxconfig: phase %q: no executor registered", s.Name)
	}
	if (exec.Each == nil) == (exec.All == nil) {
		return flux.PhaseDef{}, fmt.Errorf("fluxconfig: phase %q: executor must set exactly one of Each/All", s.Name)
	}

	def := flux.PhaseDef{
		Name:      s.Name,
		Traversal: traversal,
		Routes:    s.Routes,
		Each:      exec.Each,
		All:       exec.All,
	}

	if s.Filter != "" {
		f, err := exprfilter.New(s.Filter)
		if err != nil {
			return flux.PhaseDef{}, fmt.Errorf("fluxconfig: phase %q: %w", s.Name, err)
		}
		def.Filter = f.NodeFilter()
	}

	return def, nil
}
