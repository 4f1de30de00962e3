// Package catalog loads resource and case records from YAML or JSON files and
// validates them before they reach the repositories.
package catalog

import (
	"context"
	_ "embed"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"finassist/internal/domain"
)

//go:embed schema.json
var schemaJSON string

//go:embed seed.yaml
var seedYAML []byte

// Catalog is the validated content of a catalog file.
type Catalog struct {
	Resources []domain.Resource
	Cases     []*domain.Case
}

type file struct {
	Resources []domain.Resource `yaml:"resources"`
	Cases     []caseRecord      `yaml:"cases"`
}

type caseRecord struct {
	ID             string                   `yaml:"id"`
	EmployeeName   string                   `yaml:"employee_name"`
	Employer       string                   `yaml:"employer"`
	Urgency        domain.Urgency           `yaml:"urgency"`
	Categories     []domain.Category        `yaml:"categories"`
	Snapshot       domain.FinancialSnapshot `yaml:"financial_snapshot"`
	OpenActions    []string                 `yaml:"open_actions"`
	Status         string                   `yaml:"status"`
	LastContactAgo string                   `yaml:"last_contact_ago"`
	Messages       []messageRecord          `yaml:"messages"`
}

type messageRecord struct {
	ID      string        `yaml:"id"`
	Sender  domain.Sender `yaml:"sender"`
	Content string        `yaml:"content"`
}

// Seed returns the built-in demo catalog.
func Seed(now time.Time) (*Catalog, error) {
	return Parse(seedYAML, now)
}

// Load reads a catalog file. JSON files are accepted since JSON is valid YAML.
func Load(path string, now time.Time) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read catalog", goerr.V("path", path))
	}
	c, err := Parse(data, now)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load catalog", goerr.V("path", path))
	}
	return c, nil
}

// Parse validates data against the catalog schema and the domain rules.
// Relative case timestamps are resolved against now.
func Parse(data []byte, now time.Time) (*Catalog, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, goerr.Wrap(domain.ErrInvalidRecord, "catalog is not valid YAML", goerr.V("cause", err.Error()))
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, goerr.Wrap(domain.ErrInvalidRecord, "failed to decode catalog", goerr.V("cause", err.Error()))
	}

	out := &Catalog{}
	seen := map[string]bool{}
	for i := range f.Resources {
		r := f.Resources[i]
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if seen[r.ID] {
			return nil, goerr.Wrap(domain.ErrInvalidRecord, "duplicate resource id", goerr.V(domain.ResourceIDKey, r.ID))
		}
		seen[r.ID] = true
		out.Resources = append(out.Resources, r)
	}

	seenCases := map[string]bool{}
	for _, rec := range f.Cases {
		c, err := rec.toCase(now)
		if err != nil {
			return nil, err
		}
		if seenCases[c.ID] {
			return nil, goerr.Wrap(domain.ErrInvalidRecord, "duplicate case id", goerr.V(domain.CaseIDKey, c.ID))
		}
		seenCases[c.ID] = true
		out.Cases = append(out.Cases, c)
	}
	return out, nil
}

func (r caseRecord) toCase(now time.Time) (*domain.Case, error) {
	last := now
	if r.LastContactAgo != "" {
		ago, err := time.ParseDuration(r.LastContactAgo)
		if err != nil {
			return nil, goerr.Wrap(domain.ErrInvalidRecord, "invalid last_contact_ago",
				goerr.V(domain.CaseIDKey, r.ID), goerr.V("value", r.LastContactAgo))
		}
		last = now.Add(-ago)
	}

	c := &domain.Case{
		ID:           r.ID,
		EmployeeName: r.EmployeeName,
		Employer:     r.Employer,
		Urgency:      r.Urgency,
		Categories:   r.Categories,
		Snapshot:     r.Snapshot,
		OpenActions:  r.OpenActions,
		Status:       r.Status,
		LastContact:  last,
	}
	if c.Status == "" {
		c.Status = domain.StatusActive
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	for _, m := range r.Messages {
		id := m.ID
		if id == "" {
			id = "msg_" + uuid.NewString()
		}
		c.AppendMessage(domain.Message{ID: id, Sender: m.Sender, Content: m.Content, Timestamp: last})
	}
	return c, nil
}

func validateSchema(doc map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return goerr.Wrap(err, "catalog schema validation error")
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return goerr.Wrap(domain.ErrInvalidRecord, "catalog failed schema validation",
			goerr.V("errors", strings.Join(errs, "; ")))
	}
	return nil
}

// Install appends the catalog to the repositories. Records that already
// exist are skipped, so installing twice into a persistent store is safe.
// It returns the number of records added.
func (c *Catalog) Install(ctx context.Context, cases domain.CaseRepository, resources domain.ResourceRepository) (int, error) {
	added := 0
	for _, r := range c.Resources {
		err := resources.Append(ctx, r)
		switch {
		case err == nil:
			added++
		case !errors.Is(err, domain.ErrInvalidRecord):
			return added, goerr.Wrap(err, "failed to install resource", goerr.V(domain.ResourceIDKey, r.ID))
		}
	}
	for _, cs := range c.Cases {
		err := cases.Append(ctx, cs)
		switch {
		case err == nil:
			added++
		case !errors.Is(err, domain.ErrInvalidRecord):
			return added, goerr.Wrap(err, "failed to install case", goerr.V(domain.CaseIDKey, cs.ID))
		}
	}
	return added, nil
}
