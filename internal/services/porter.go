// Package services holds the job engine: admission, stage running and
// end-to-end job orchestration.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/halcyonweb/siteporter/internal/db/models"
)

// Built-in category names, listed here in dependency order: users reference
// roles and taxonomy terms, assets (folders and files) reference their owning
// users.
const (
	CategorySettings = "settings"
	CategoryTaxonomy = "taxonomy"
	CategoryRoles    = "roles"
	CategoryUsers    = "users"
	CategoryAssets   = "assets"
)

// StageResult is what a porter reports after one page of work within a stage
type StageResult struct {
	// Completed is true once the stage has no work left
	Completed bool
	// Cursor is the resumption state to persist for the next page
	Cursor models.StageCursor
	// Records is the number of entities processed in this page
	Records int
}

// Porter moves one category of site content in or out. Implementations own
// the payload format and the meaning of their cursors; the engine only drives
// them stage by stage and persists whatever cursor they hand back.
type Porter interface {
	// Category names the data partition this porter handles
	Category() string
	// Dependencies lists categories that must be complete before this one starts
	Dependencies() []string
	// Stages returns the number of ordered stages in this category
	Stages() int
	// RunStage performs one page of work. A porter that hits a bad unit it can
	// step over returns a TransientError together with a result whose cursor
	// is already advanced past the unit.
	RunStage(ctx context.Context, job *models.Job, stage int, cursor models.StageCursor, pageSize int) (StageResult, error)
}

// TransientError marks a single-unit failure the runner should log and skip
// rather than abort the category on
type TransientError struct {
	Unit string
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("unit %s: %v", e.Unit, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a single-unit failure
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Registry holds the porters of a deployment in execution order
type Registry struct {
	porters []Porter
	byName  map[string]Porter
}

// NewRegistry builds a registry from porters given in execution order. Every
// declared dependency must belong to a porter registered earlier, so the
// order itself is a valid topological order.
func NewRegistry(porters ...Porter) (*Registry, error) {
	r := &Registry{byName: make(map[string]Porter, len(porters))}
	for _, p := range porters {
		if p.Category() == "" {
			return nil, fmt.Errorf("porter with empty category")
		}
		if _, ok := r.byName[p.Category()]; ok {
			return nil, fmt.Errorf("duplicate porter for category %s", p.Category())
		}
		for _, dep := range p.Dependencies() {
			if _, ok := r.byName[dep]; !ok {
				return nil, fmt.Errorf("category %s depends on %s which is not registered before it", p.Category(), dep)
			}
		}
		r.byName[p.Category()] = p
		r.porters = append(r.porters, p)
	}
	return r, nil
}

// Porters returns the porters in execution order
func (r *Registry) Porters() []Porter {
	return r.porters
}

// Get returns the porter for a category, if registered
func (r *Registry) Get(category string) (Porter, bool) {
	p, ok := r.byName[category]
	return p, ok
}
