package retrieval

import (
	"fmt"
	"strings"

	"finassist/internal/domain"
)

// Query construction limits.
const (
	DefaultMaxDocuments = 3
	DefaultExcerptChars = 300
)

// BuildQuery renders the case profile as retrieval text. Lines appear in a
// fixed order: income, credit score, savings, debt, categories, urgency and
// employer, followed by at most maxDocs document excerpts of at most
// excerptChars runes each. Documents without text are skipped.
func BuildQuery(c *domain.Case, maxDocs, excerptChars int) string {
	if maxDocs < 0 {
		maxDocs = 0
	}
	s := c.Snapshot
	cats := make([]string, len(c.Categories))
	for i, cat := range c.Categories {
		cats[i] = string(cat)
	}

	var b strings.Builder
	b.WriteString("Financial Profile:\n")
	fmt.Fprintf(&b, "- Income: $%d\n", s.AnnualIncome)
	fmt.Fprintf(&b, "- Credit Score: %d\n", s.CreditScore)
	fmt.Fprintf(&b, "- Savings: $%d\n", s.Savings)
	fmt.Fprintf(&b, "- Debt: $%d\n", s.TotalDebt)
	fmt.Fprintf(&b, "- Issues: %s\n", strings.Join(cats, ", "))
	fmt.Fprintf(&b, "- Urgency: %s\n", c.Urgency)
	fmt.Fprintf(&b, "- Employer: %s", c.Employer)

	added := 0
	for _, d := range c.Documents {
		if added == maxDocs {
			break
		}
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		if added == 0 {
			b.WriteString("\n\nDocument Information:")
		}
		fmt.Fprintf(&b, "\n- %s: %s", d.Filename, Truncate(text, excerptChars))
		added++
	}
	return b.String()
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// ResourceText is the indexed text of a resource.
func ResourceText(r domain.Resource) string {
	amount := "varies"
	if r.MaxAmount != nil {
		amount = fmt.Sprintf("%d", *r.MaxAmount)
	}
	location := r.Location
	if location == "" {
		location = "National"
	}
	return fmt.Sprintf("%s. %s\nEligibility: %s\nCategory: %s\nLocation: %s\nMax amount: $%s\nApproval time: %s",
		r.Name, r.Description, r.Eligibility, r.Category, location, amount, r.ApprovalTime)
}

// CaseText is the indexed text of a resolved case.
func CaseText(c *domain.Case, o domain.Outcome) string {
	cats := make([]string, len(c.Categories))
	for i, cat := range c.Categories {
		cats[i] = string(cat)
	}
	resolution := o.Resolution
	if resolution == "" {
		resolution = "unknown"
	}
	return fmt.Sprintf("Employee: %s at %s\nIncome: $%d\nCredit: %d\nIssue: %s\nUrgency: %s\nOutcome: %s\nResources used: %s\nSuccess: %t",
		c.EmployeeName, c.Employer, c.Snapshot.AnnualIncome, c.Snapshot.CreditScore,
		strings.Join(cats, ", "), c.Urgency, resolution, strings.Join(o.ResourcesUsed, ", "), o.Success)
}

// similarCaseQuery mirrors the profile part of CaseText.
func similarCaseQuery(c *domain.Case) string {
	cats := make([]string, len(c.Categories))
	for i, cat := range c.Categories {
		cats[i] = string(cat)
	}
	return fmt.Sprintf("Income: $%d\nCredit: %d\nIssue: %s\nUrgency: %s",
		c.Snapshot.AnnualIncome, c.Snapshot.CreditScore, strings.Join(cats, ", "), c.Urgency)
}
