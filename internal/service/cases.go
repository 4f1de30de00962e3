package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"finassist/internal/domain"
	"finassist/internal/logging"
	"finassist/internal/retrieval"
	"finassist/internal/summarizer"
)

func (a *Assistant) ListCases(ctx context.Context) ([]*domain.Case, error) {
	cases, err := a.cases.List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list cases")
	}
	return cases, nil
}

func (a *Assistant) GetCase(ctx context.Context, id string) (*domain.Case, error) {
	return a.getCase(ctx, id)
}

// NewCase is the intake form for a case.
type NewCase struct {
	EmployeeName string                   `json:"employee_name"`
	Employer     string                   `json:"employer"`
	Snapshot     domain.FinancialSnapshot `json:"financial_snapshot"`
}

// CreateCase opens an active case of medium urgency. Categories are refined
// later by triage.
func (a *Assistant) CreateCase(ctx context.Context, in NewCase) (*domain.Case, error) {
	c := &domain.Case{
		ID:           "case_" + uuid.NewString(),
		EmployeeName: strings.TrimSpace(in.EmployeeName),
		Employer:     strings.TrimSpace(in.Employer),
		Urgency:      domain.UrgencyMedium,
		Categories:   []domain.Category{domain.CategoryOther},
		Snapshot:     in.Snapshot,
		OpenActions:  []string{},
		Messages:     []domain.Message{},
		Status:       domain.StatusActive,
		LastContact:  a.now(),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := a.cases.Append(ctx, c); err != nil {
		return nil, goerr.Wrap(err, "failed to store case", goerr.V(domain.CaseIDKey, c.ID))
	}
	a.logger.Info("case created", zap.String(domain.CaseIDKey, c.ID))
	return c, nil
}

// SendMessage appends a message to a case. Employee messages are triaged and
// carry the analysis.
func (a *Assistant) SendMessage(ctx context.Context, caseID string, sender domain.Sender, content string) (domain.Message, error) {
	if !sender.Valid() {
		return domain.Message{}, goerr.Wrap(domain.ErrInvalidRecord, "unknown sender", goerr.V("sender", sender))
	}
	c, err := a.getCase(ctx, caseID)
	if err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:        "msg_" + uuid.NewString(),
		Sender:    sender,
		Content:   content,
		Timestamp: a.now(),
	}
	if sender == domain.SenderEmployee {
		res := a.triage.Triage(ctx, content, c)
		a.metrics.Triaged(string(res.Urgency))
		msg.Analysis = &res
	}

	stored, err := a.cases.AppendMessage(ctx, caseID, msg)
	if err != nil {
		return domain.Message{}, goerr.Wrap(err, "failed to append message", goerr.V(domain.CaseIDKey, caseID))
	}
	return stored, nil
}

// Upload describes a document attached to a case.
type Upload struct {
	DocumentID string            `json:"document_id"`
	Filename   string            `json:"filename"`
	Preview    *string           `json:"extracted_text_preview"`
	HasText    bool              `json:"has_text"`
	Digest     summarizer.Digest `json:"digest"`
}

// minUsefulText is the extracted length below which a document is treated as
// having no text.
const minUsefulText = 10

// AttachDocument stores the extracted text of an uploaded file and returns a
// preview and digest of it.
func (a *Assistant) AttachDocument(ctx context.Context, caseID, filename, text string) (Upload, error) {
	doc := domain.Document{
		ID:         uuid.NewString(),
		Filename:   filename,
		Text:       text,
		UploadedAt: a.now(),
	}
	if err := a.cases.AttachDocument(ctx, caseID, doc); err != nil {
		return Upload{}, goerr.Wrap(err, "failed to attach document", goerr.V(domain.CaseIDKey, caseID))
	}

	out := Upload{
		DocumentID: doc.ID,
		Filename:   filename,
		HasText:    len(strings.TrimSpace(text)) > minUsefulText,
		Digest:     a.summarizer.Digest(text, a.cfg.DigestSentences),
	}
	if text != "" {
		p := retrieval.Truncate(text, a.cfg.PreviewChars)
		out.Preview = &p
	}
	a.logger.Info("document attached",
		zap.String(domain.CaseIDKey, caseID), zap.String("filename", filename), zap.Int("chars", len(text)))
	return out, nil
}

// DocumentInfo is document metadata without the extracted text.
type DocumentInfo struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
	HasText    bool      `json:"has_text"`
}

func (a *Assistant) Documents(ctx context.Context, caseID string) ([]DocumentInfo, error) {
	c, err := a.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	out := make([]DocumentInfo, len(c.Documents))
	for i, d := range c.Documents {
		out[i] = DocumentInfo{
			ID:         d.ID,
			Filename:   d.Filename,
			UploadedAt: d.UploadedAt,
			HasText:    len(strings.TrimSpace(d.Text)) > minUsefulText,
		}
	}
	return out, nil
}

func (a *Assistant) SaveNotes(ctx context.Context, caseID, notes string) error {
	if err := a.cases.SaveNotes(ctx, caseID, notes); err != nil {
		return goerr.Wrap(err, "failed to save notes", goerr.V(domain.CaseIDKey, caseID))
	}
	return nil
}

func (a *Assistant) Notes(ctx context.Context, caseID string) (string, error) {
	notes, err := a.cases.Notes(ctx, caseID)
	if err != nil {
		return "", goerr.Wrap(err, "failed to load notes", goerr.V(domain.CaseIDKey, caseID))
	}
	return notes, nil
}

// RecordOutcome resolves a case and adds it to the past-case collection so
// later similar cases can find it. Indexing failures are logged only.
func (a *Assistant) RecordOutcome(ctx context.Context, o domain.Outcome) error {
	c, err := a.getCase(ctx, o.CaseID)
	if err != nil {
		return err
	}
	if o.ResourcesUsed == nil {
		o.ResourcesUsed = []string{}
	}
	if err := a.cases.SaveOutcome(ctx, o); err != nil {
		return goerr.Wrap(err, "failed to save outcome", goerr.V(domain.CaseIDKey, o.CaseID))
	}
	if err := a.cases.SetStatus(ctx, o.CaseID, domain.StatusResolved); err != nil {
		return goerr.Wrap(err, "failed to resolve case", goerr.V(domain.CaseIDKey, o.CaseID))
	}
	if err := a.retrieval.IndexOutcome(ctx, c, o); err != nil {
		logging.Warn(a.logger, "failed to index resolved case", err, zap.String(domain.CaseIDKey, o.CaseID))
	}
	return nil
}

// SimilarCases returns resolved cases resembling the given one.
func (a *Assistant) SimilarCases(ctx context.Context, caseID string, n int) ([]domain.Match, error) {
	c, err := a.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	matches, err := a.retrieval.SimilarCases(ctx, c, n)
	if err != nil {
		logging.Warn(a.logger, "similar case search failed", err, zap.String(domain.CaseIDKey, caseID))
		return []domain.Match{}, nil
	}
	if matches == nil {
		matches = []domain.Match{}
	}
	return matches, nil
}
