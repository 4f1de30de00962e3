package domain

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// FinancialSnapshot is the employee's financial profile at intake.
type FinancialSnapshot struct {
	AnnualIncome int `json:"annual_income" yaml:"annual_income"`
	CreditScore  int `json:"credit_score" yaml:"credit_score"`
	Savings      int `json:"savings" yaml:"savings"`
	TotalDebt    int `json:"total_debt" yaml:"total_debt"`
	Dependents   int `json:"dependents" yaml:"dependents"`
}

func (s FinancialSnapshot) Validate() error {
	fields := map[string]int{
		"annual_income": s.AnnualIncome,
		"credit_score":  s.CreditScore,
		"savings":       s.Savings,
		"total_debt":    s.TotalDebt,
		"dependents":    s.Dependents,
	}
	for name, v := range fields {
		if v < 0 {
			return goerr.Wrap(ErrInvalidRecord, "financial snapshot field must be non-negative",
				goerr.V("field", name), goerr.V("value", v))
		}
	}
	return nil
}

// Message is one entry in a case conversation.
type Message struct {
	ID        string        `json:"id"`
	CaseID    string        `json:"case_id"`
	Sender    Sender        `json:"sender"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	Analysis  *TriageResult `json:"analysis,omitempty"`
}

// Document is text extracted from a file attached to a case.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Text       string    `json:"text"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Case is an employee's request for financial assistance.
type Case struct {
	ID           string            `json:"id"`
	EmployeeName string            `json:"employee_name"`
	Employer     string            `json:"employer"`
	Urgency      Urgency           `json:"urgency"`
	Categories   []Category        `json:"categories"`
	Snapshot     FinancialSnapshot `json:"financial_snapshot"`
	OpenActions  []string          `json:"open_actions"`
	Messages     []Message         `json:"messages"`
	Documents    []Document        `json:"documents,omitempty"`
	Status       string            `json:"status"`
	LastContact  time.Time         `json:"last_contact"`
}

func (c *Case) Validate() error {
	if c.ID == "" {
		return goerr.Wrap(ErrInvalidRecord, "case id is required")
	}
	if c.EmployeeName == "" {
		return goerr.Wrap(ErrInvalidRecord, "employee name is required", goerr.V(CaseIDKey, c.ID))
	}
	if !c.Urgency.Valid() {
		return goerr.Wrap(ErrInvalidRecord, "unknown urgency",
			goerr.V(CaseIDKey, c.ID), goerr.V("urgency", c.Urgency))
	}
	if len(c.Categories) == 0 {
		return goerr.Wrap(ErrInvalidRecord, "case must have at least one category", goerr.V(CaseIDKey, c.ID))
	}
	for _, cat := range c.Categories {
		if !cat.Valid() {
			return goerr.Wrap(ErrInvalidRecord, "unknown category",
				goerr.V(CaseIDKey, c.ID), goerr.V("category", cat))
		}
	}
	if err := c.Snapshot.Validate(); err != nil {
		return goerr.Wrap(err, "invalid financial snapshot", goerr.V(CaseIDKey, c.ID))
	}
	return nil
}

// AppendMessage adds msg to the conversation. Timestamps never go backwards
// within a case: an earlier timestamp is raised to the latest one.
func (c *Case) AppendMessage(msg Message) Message {
	msg.CaseID = c.ID
	if n := len(c.Messages); n > 0 && msg.Timestamp.Before(c.Messages[n-1].Timestamp) {
		msg.Timestamp = c.Messages[n-1].Timestamp
	}
	c.Messages = append(c.Messages, msg)
	c.LastContact = msg.Timestamp
	return msg
}

// DocumentTexts returns the extracted text of each attached document in order.
func (c *Case) DocumentTexts() []string {
	out := make([]string, 0, len(c.Documents))
	for _, d := range c.Documents {
		out = append(out, d.Text)
	}
	return out
}

// LatestEmployeeMessage returns the most recent message sent by the employee.
func (c *Case) LatestEmployeeMessage() (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Sender == SenderEmployee {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}

// Clone returns a deep copy so callers cannot mutate repository state.
func (c *Case) Clone() *Case {
	out := *c
	out.Categories = append([]Category(nil), c.Categories...)
	out.OpenActions = append([]string(nil), c.OpenActions...)
	out.Messages = append([]Message(nil), c.Messages...)
	for i := range out.Messages {
		out.Messages[i].Analysis = out.Messages[i].Analysis.Clone()
	}
	out.Documents = append([]Document(nil), c.Documents...)
	return &out
}

// Outcome records how a case was resolved.
type Outcome struct {
	CaseID        string   `json:"case_id"`
	Resolution    string   `json:"resolution"`
	ResourcesUsed []string `json:"resources_used"`
	Success       bool     `json:"success"`
}
