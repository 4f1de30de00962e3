// Package memory provides in-process repositories guarded by RWMutex. Values
// are copied on the way in and out so callers never share repository state.
package memory

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"finassist/internal/domain"
)

type CaseRepository struct {
	mu       sync.RWMutex
	order    []string
	cases    map[string]*domain.Case
	notes    map[string]string
	outcomes []domain.Outcome
}

func NewCaseRepository() *CaseRepository {
	return &CaseRepository{
		cases: make(map[string]*domain.Case),
		notes: make(map[string]string),
	}
}

func (r *CaseRepository) Get(ctx context.Context, id string) (*domain.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, notFound(id)
	}
	return c.Clone(), nil
}

// List returns cases in insertion order.
func (r *CaseRepository) List(ctx context.Context) ([]*domain.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Case, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.cases[id].Clone())
	}
	return out, nil
}

func (r *CaseRepository) Append(ctx context.Context, c *domain.Case) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cases[c.ID]; ok {
		return goerr.Wrap(domain.ErrInvalidRecord, "case already exists", goerr.V(domain.CaseIDKey, c.ID))
	}
	r.cases[c.ID] = c.Clone()
	r.order = append(r.order, c.ID)
	return nil
}

func (r *CaseRepository) AppendMessage(ctx context.Context, caseID string, msg domain.Message) (domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[caseID]
	if !ok {
		return domain.Message{}, notFound(caseID)
	}
	return c.AppendMessage(msg), nil
}

func (r *CaseRepository) AttachDocument(ctx context.Context, caseID string, doc domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[caseID]
	if !ok {
		return notFound(caseID)
	}
	c.Documents = append(c.Documents, doc)
	return nil
}

func (r *CaseRepository) SetStatus(ctx context.Context, caseID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[caseID]
	if !ok {
		return notFound(caseID)
	}
	c.Status = status
	return nil
}

func (r *CaseRepository) SaveNotes(ctx context.Context, caseID, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cases[caseID]; !ok {
		return notFound(caseID)
	}
	r.notes[caseID] = notes
	return nil
}

// Notes returns an empty string for a case without notes.
func (r *CaseRepository) Notes(ctx context.Context, caseID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.cases[caseID]; !ok {
		return "", notFound(caseID)
	}
	return r.notes[caseID], nil
}

func (r *CaseRepository) SaveOutcome(ctx context.Context, outcome domain.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cases[outcome.CaseID]; !ok {
		return notFound(outcome.CaseID)
	}
	outcome.ResourcesUsed = append([]string(nil), outcome.ResourcesUsed...)
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

// Outcomes returns every recorded outcome in recording order.
func (r *CaseRepository) Outcomes() []domain.Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Outcome(nil), r.outcomes...)
}

func notFound(id string) error {
	return goerr.Wrap(domain.ErrCaseNotFound, "case lookup failed", goerr.V(domain.CaseIDKey, id))
}

// ResourceRepository is the in-memory resource catalog.
type ResourceRepository struct {
	mu        sync.RWMutex
	resources []domain.Resource
	index     map[string]int
}

func NewResourceRepository() *ResourceRepository {
	return &ResourceRepository{index: make(map[string]int)}
}

func (r *ResourceRepository) Get(ctx context.Context, id string) (*domain.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return nil, goerr.Wrap(domain.ErrResourceNotFound, "resource lookup failed", goerr.V(domain.ResourceIDKey, id))
	}
	res := r.resources[i]
	return &res, nil
}

func (r *ResourceRepository) List(ctx context.Context) ([]domain.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Resource(nil), r.resources...), nil
}

func (r *ResourceRepository) Append(ctx context.Context, res domain.Resource) error {
	if err := res.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[res.ID]; ok {
		return goerr.Wrap(domain.ErrInvalidRecord, "resource already exists", goerr.V(domain.ResourceIDKey, res.ID))
	}
	r.index[res.ID] = len(r.resources)
	r.resources = append(r.resources, res)
	return nil
}
