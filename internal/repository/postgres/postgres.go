// Package postgres stores cases and resources in PostgreSQL through
// database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/m-mizutani/goerr/v2"

	"finassist/internal/domain"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Config holds connection pool settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open opens a pooled connection. It does not contact the server.
func Open(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open postgres")
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime == 0 {
		lifetime = 5 * time.Minute
	}
	db.SetConnMaxLifetime(lifetime)
	db.SetConnMaxIdleTime(lifetime)
	return db, nil
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return goerr.Wrap(err, "failed to apply schema")
	}
	return nil
}

type CaseRepository struct {
	db *sql.DB
}

func NewCaseRepository(db *sql.DB) *CaseRepository { return &CaseRepository{db: db} }

const caseColumns = `id, employee_name, employer, urgency, categories, financial_snapshot, open_actions, status, last_contact`

func (r *CaseRepository) Get(ctx context.Context, id string) (*domain.Case, error) {
	c, err := scanCase(r.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caseNotFound(id)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query case", goerr.V(domain.CaseIDKey, id))
	}
	if err := r.attachChildren(ctx, []*domain.Case{c}); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns cases in insertion order. Messages and documents for all
// cases are fetched with one query each.
func (r *CaseRepository) List(ctx context.Context) ([]*domain.Case, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+caseColumns+` FROM cases ORDER BY seq`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list cases")
	}
	var out []*domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			rows.Close()
			return nil, goerr.Wrap(err, "failed to scan case")
		}
		out = append(out, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate cases")
	}
	if out == nil {
		return []*domain.Case{}, nil
	}
	if err := r.attachChildren(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func scanCase(s scanner) (*domain.Case, error) {
	var (
		c                       domain.Case
		cats, snapshot, actions []byte
	)
	if err := s.Scan(&c.ID, &c.EmployeeName, &c.Employer, &c.Urgency, &cats, &snapshot, &actions, &c.Status, &c.LastContact); err != nil {
		return nil, err
	}
	if err := decodeJSON(cats, &c.Categories); err != nil {
		return nil, err
	}
	if err := decodeJSON(snapshot, &c.Snapshot); err != nil {
		return nil, err
	}
	if err := decodeJSON(actions, &c.OpenActions); err != nil {
		return nil, err
	}
	return &c, nil
}

// attachChildren loads the messages and documents of cases in seq order.
func (r *CaseRepository) attachChildren(ctx context.Context, cases []*domain.Case) error {
	byID := make(map[string]*domain.Case, len(cases))
	ids := make([]string, len(cases))
	for i, c := range cases {
		byID[c.ID] = c
		ids[i] = c.ID
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT case_id, id, sender, content, timestamp, ai_analysis FROM messages WHERE case_id = ANY($1) ORDER BY seq`, pq.Array(ids))
	if err != nil {
		return goerr.Wrap(err, "failed to query messages", goerr.V("cases", len(ids)))
	}
	for rows.Next() {
		var (
			m        domain.Message
			analysis []byte
		)
		if err := rows.Scan(&m.CaseID, &m.ID, &m.Sender, &m.Content, &m.Timestamp, &analysis); err != nil {
			rows.Close()
			return goerr.Wrap(err, "failed to scan message")
		}
		if len(analysis) > 0 {
			m.Analysis = &domain.TriageResult{}
			if err := decodeJSON(analysis, m.Analysis); err != nil {
				rows.Close()
				return err
			}
		}
		if c, ok := byID[m.CaseID]; ok {
			c.Messages = append(c.Messages, m)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return goerr.Wrap(err, "failed to iterate messages")
	}

	rows, err = r.db.QueryContext(ctx,
		`SELECT case_id, id, filename, extracted_text, uploaded_at FROM documents WHERE case_id = ANY($1) ORDER BY seq`, pq.Array(ids))
	if err != nil {
		return goerr.Wrap(err, "failed to query documents", goerr.V("cases", len(ids)))
	}
	defer rows.Close()
	for rows.Next() {
		var (
			caseID string
			d      domain.Document
		)
		if err := rows.Scan(&caseID, &d.ID, &d.Filename, &d.Text, &d.UploadedAt); err != nil {
			return goerr.Wrap(err, "failed to scan document")
		}
		if c, ok := byID[caseID]; ok {
			c.Documents = append(c.Documents, d)
		}
	}
	if err := rows.Err(); err != nil {
		return goerr.Wrap(err, "failed to iterate documents")
	}
	return nil
}

func (r *CaseRepository) Append(ctx context.Context, c *domain.Case) error {
	if err := c.Validate(); err != nil {
		return err
	}
	cats, _ := json.Marshal(c.Categories)
	snapshot, _ := json.Marshal(c.Snapshot)
	actions, _ := json.Marshal(nonNil(c.OpenActions))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cases (id, employee_name, employer, urgency, categories, financial_snapshot, open_actions, status, last_contact) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.EmployeeName, c.Employer, string(c.Urgency), cats, snapshot, actions, c.Status, c.LastContact)
	if err != nil {
		if isUniqueViolation(err) {
			return goerr.Wrap(domain.ErrInvalidRecord, "case already exists", goerr.V(domain.CaseIDKey, c.ID))
		}
		return goerr.Wrap(err, "failed to insert case", goerr.V(domain.CaseIDKey, c.ID))
	}
	for _, m := range c.Messages {
		if err := insertMessage(ctx, tx, c.ID, m); err != nil {
			return err
		}
	}
	for _, d := range c.Documents {
		if _, err := tx.ExecContext(ctx, insertDocument, d.ID, c.ID, d.Filename, d.Text, d.UploadedAt); err != nil {
			return goerr.Wrap(err, "failed to insert document", goerr.V(domain.CaseIDKey, c.ID))
		}
	}
	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit case", goerr.V(domain.CaseIDKey, c.ID))
	}
	return nil
}

// AppendMessage serialises writers on the case row so message timestamps stay
// non-decreasing.
func (r *CaseRepository) AppendMessage(ctx context.Context, caseID string, msg domain.Message) (domain.Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM cases WHERE id = $1 FOR UPDATE`, caseID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, caseNotFound(caseID)
	}
	if err != nil {
		return domain.Message{}, goerr.Wrap(err, "failed to lock case", goerr.V(domain.CaseIDKey, caseID))
	}

	var last sql.NullTime
	if err := tx.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM messages WHERE case_id = $1`, caseID).Scan(&last); err != nil {
		return domain.Message{}, goerr.Wrap(err, "failed to read last message time", goerr.V(domain.CaseIDKey, caseID))
	}
	if last.Valid && msg.Timestamp.Before(last.Time) {
		msg.Timestamp = last.Time
	}
	msg.CaseID = caseID

	if err := insertMessage(ctx, tx, caseID, msg); err != nil {
		return domain.Message{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE cases SET last_contact = $2 WHERE id = $1`, caseID, msg.Timestamp); err != nil {
		return domain.Message{}, goerr.Wrap(err, "failed to update last contact", goerr.V(domain.CaseIDKey, caseID))
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, goerr.Wrap(err, "failed to commit message", goerr.V(domain.CaseIDKey, caseID))
	}
	return msg, nil
}

const insertDocument = `INSERT INTO documents (id, case_id, filename, extracted_text, uploaded_at) SELECT $1, $2, $3, $4, $5 WHERE EXISTS (SELECT 1 FROM cases WHERE id = $2)`

func (r *CaseRepository) AttachDocument(ctx context.Context, caseID string, doc domain.Document) error {
	res, err := r.db.ExecContext(ctx, insertDocument, doc.ID, caseID, doc.Filename, doc.Text, doc.UploadedAt)
	if err != nil {
		return goerr.Wrap(err, "failed to insert document", goerr.V(domain.CaseIDKey, caseID))
	}
	return requireRow(res, caseID)
}

func (r *CaseRepository) SetStatus(ctx context.Context, caseID, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE cases SET status = $2 WHERE id = $1`, caseID, status)
	if err != nil {
		return goerr.Wrap(err, "failed to update status", goerr.V(domain.CaseIDKey, caseID))
	}
	return requireRow(res, caseID)
}

func (r *CaseRepository) SaveNotes(ctx context.Context, caseID, notes string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE cases SET notes = $2 WHERE id = $1`, caseID, notes)
	if err != nil {
		return goerr.Wrap(err, "failed to save notes", goerr.V(domain.CaseIDKey, caseID))
	}
	return requireRow(res, caseID)
}

func (r *CaseRepository) Notes(ctx context.Context, caseID string) (string, error) {
	var notes string
	err := r.db.QueryRowContext(ctx, `SELECT notes FROM cases WHERE id = $1`, caseID).Scan(&notes)
	if errors.Is(err, sql.ErrNoRows) {
		return "", caseNotFound(caseID)
	}
	if err != nil {
		return "", goerr.Wrap(err, "failed to read notes", goerr.V(domain.CaseIDKey, caseID))
	}
	return notes, nil
}

func (r *CaseRepository) SaveOutcome(ctx context.Context, o domain.Outcome) error {
	used, _ := json.Marshal(nonNil(o.ResourcesUsed))
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO case_outcomes (case_id, resolution, resources_used, success) SELECT $1, $2, $3, $4 WHERE EXISTS (SELECT 1 FROM cases WHERE id = $1)`,
		o.CaseID, o.Resolution, used, o.Success)
	if err != nil {
		return goerr.Wrap(err, "failed to insert outcome", goerr.V(domain.CaseIDKey, o.CaseID))
	}
	return requireRow(res, o.CaseID)
}

func insertMessage(ctx context.Context, tx *sql.Tx, caseID string, m domain.Message) error {
	var analysis any
	if m.Analysis != nil {
		data, err := json.Marshal(m.Analysis)
		if err != nil {
			return goerr.Wrap(err, "failed to encode message analysis", goerr.V("message_id", m.ID))
		}
		analysis = data
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, case_id, sender, content, timestamp, ai_analysis) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, caseID, string(m.Sender), m.Content, m.Timestamp, analysis)
	if err != nil {
		return goerr.Wrap(err, "failed to insert message", goerr.V(domain.CaseIDKey, caseID), goerr.V("message_id", m.ID))
	}
	return nil
}

// ResourceRepository stores the resource catalog; List follows insertion order.
type ResourceRepository struct {
	db *sql.DB
}

func NewResourceRepository(db *sql.DB) *ResourceRepository { return &ResourceRepository{db: db} }

const resourceColumns = `id, name, description, category, eligibility_criteria, max_amount, typical_approval_time, application_difficulty, success_rate, contact_info, location`

func (r *ResourceRepository) Get(ctx context.Context, id string) (*domain.Resource, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id)
	res, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(domain.ErrResourceNotFound, "resource lookup failed", goerr.V(domain.ResourceIDKey, id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query resource", goerr.V(domain.ResourceIDKey, id))
	}
	return &res, nil
}

func (r *ResourceRepository) List(ctx context.Context) ([]domain.Resource, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+resourceColumns+` FROM resources ORDER BY position`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list resources")
	}
	defer rows.Close()

	var out []domain.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan resource")
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate resources")
	}
	return out, nil
}

func (r *ResourceRepository) Append(ctx context.Context, res domain.Resource) error {
	if err := res.Validate(); err != nil {
		return err
	}
	var maxAmount sql.NullInt64
	if res.MaxAmount != nil {
		maxAmount = sql.NullInt64{Int64: int64(*res.MaxAmount), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO resources (`+resourceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		res.ID, res.Name, res.Description, string(res.Category), res.Eligibility, maxAmount,
		res.ApprovalTime, string(res.Difficulty), res.SuccessRate, res.ContactInfo, res.Location)
	if err != nil {
		if isUniqueViolation(err) {
			return goerr.Wrap(domain.ErrInvalidRecord, "resource already exists", goerr.V(domain.ResourceIDKey, res.ID))
		}
		return goerr.Wrap(err, "failed to insert resource", goerr.V(domain.ResourceIDKey, res.ID))
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(s scanner) (domain.Resource, error) {
	var (
		res       domain.Resource
		maxAmount sql.NullInt64
	)
	err := s.Scan(&res.ID, &res.Name, &res.Description, &res.Category, &res.Eligibility, &maxAmount,
		&res.ApprovalTime, &res.Difficulty, &res.SuccessRate, &res.ContactInfo, &res.Location)
	if err != nil {
		return domain.Resource{}, err
	}
	if maxAmount.Valid {
		v := int(maxAmount.Int64)
		res.MaxAmount = &v
	}
	return res, nil
}

func requireRow(res sql.Result, caseID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to read affected rows", goerr.V(domain.CaseIDKey, caseID))
	}
	if n == 0 {
		return caseNotFound(caseID)
	}
	return nil
}

func caseNotFound(id string) error {
	return goerr.Wrap(domain.ErrCaseNotFound, "case lookup failed", goerr.V(domain.CaseIDKey, id))
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func decodeJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return goerr.Wrap(err, "failed to decode json column")
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
