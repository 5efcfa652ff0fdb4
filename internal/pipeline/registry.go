// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline contains the stage registry and the execution engine
// that drives a document through the fixed stage sequence.
package pipeline

import (
	"context"

	"github.com/docline/docline/internal/errs"
)

// Stage is one unit of pipeline work. Execute must be idempotent for a
// given document: the engine may run it again after a crash.
type Stage interface {
	Name() string
	Execute(ctx context.Context, documentID uint) error
}

// StageOrder is the fixed execution order. Stages always run in this
// sequence; completed stages are skipped on reruns.
var StageOrder = []string{
	"ingest",
	"text_extraction",
	"layout_normalization",
	"chunking",
	"embedding",
	"structured_extraction",
	"validation",
	"persistence",
	"metrics_and_audit",
}

// Registry holds the registered stages.
type Registry struct {
	stages map[string]Stage
}

// NewRegistry creates an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]Stage)}
}

// Register adds a stage under its own name.
func (r *Registry) Register(stage Stage) {
	r.stages[stage.Name()] = stage
}

// Get returns a registered stage by name.
func (r *Registry) Get(name string) (Stage, error) {
	stage, ok := r.stages[name]
	if !ok {
		return nil, errs.Newf(errs.KindPipelineState, "stage not registered: %s", name)
	}
	return stage, nil
}

// Ordered returns the execution order as a fresh slice.
func (r *Registry) Ordered() []string {
	order := make([]string, len(StageOrder))
	copy(order, StageOrder)
	return order
}
