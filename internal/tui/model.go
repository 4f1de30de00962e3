package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"finassist/internal/domain"
	"finassist/internal/stream"
	"finassist/internal/summarizer"
)

// Assistant is the console-facing subset of the caseworker service.
type Assistant interface {
	ListCases(ctx context.Context) ([]*domain.Case, error)
	StreamRecommend(ctx context.Context, caseID string, sink stream.Sink) stream.Status
	Triage(ctx context.Context, caseID, message string) (domain.TriageResult, error)
}

type casesMsg struct {
	cases []*domain.Case
	err   error
}

type streamStartedMsg struct {
	events <-chan stream.Event
	cancel context.CancelFunc
}

type eventMsg struct {
	event stream.Event
	ok    bool
}

type triageMsg struct {
	message string
	result  domain.TriageResult
	err     error
}

// Model is the Bubble Tea model for the caseworker console.
type Model struct {
	ctx       context.Context
	assistant Assistant
	input     textinput.Model
	viewport  viewport.Model
	cases     []*domain.Case
	cursor    int
	progress  strings.Builder
	recs      []domain.Recommendation
	triage    *domain.TriageResult
	message   string
	events    <-chan stream.Event
	cancel    context.CancelFunc
	status    string
	ready     bool
}

// New creates a console bound to ctx. Cancelling ctx stops any running
// stream.
func New(ctx context.Context, a Assistant) *Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type an employee message and press Enter to triage"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return &Model{ctx: ctx, assistant: a, input: ti, viewport: vp, status: "Loading cases..."}
}

// Init loads the case list.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadCases)
}

func (m *Model) loadCases() tea.Msg {
	cases, err := m.assistant.ListCases(m.ctx)
	return casesMsg{cases: cases, err: err}
}

// Update handles key, window and stream events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + len(m.cases) + 1 + qh + 1
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil
	case casesMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.cases = msg.cases
		m.status = fmt.Sprintf("%d cases. ↑/↓ select, ctrl+r recommend, enter triage, esc stop.", len(m.cases))
		m.refresh()
		return m, nil
	case streamStartedMsg:
		m.events, m.cancel = msg.events, msg.cancel
		return m, waitForEvent(m.events)
	case eventMsg:
		return m, m.handleEvent(msg)
	case triageMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		res := msg.result
		m.triage, m.message = &res, msg.message
		m.status = fmt.Sprintf("Triage: %s (priority %d)", res.Urgency, res.PriorityScore)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			m.stop()
			return m, tea.Quit
		}
		switch msg.String() {
		case "esc":
			if m.events != nil {
				m.stop()
				m.status = "Stopped."
				return m, nil
			}
		case "ctrl+r":
			return m, m.startRecommend()
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if c := m.selected(); c != nil && text != "" {
				m.input.SetValue("")
				m.status = "Triaging..."
				return m, m.runTriage(c.ID, text)
			}
		case "down":
			if len(m.cases) > 0 {
				m.cursor = (m.cursor + 1) % len(m.cases)
				m.clearResults()
				return m, nil
			}
		case "up":
			if len(m.cases) > 0 {
				m.cursor = (m.cursor - 1 + len(m.cases)) % len(m.cases)
				m.clearResults()
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) selected() *domain.Case {
	if len(m.cases) == 0 {
		return nil
	}
	return m.cases[m.cursor]
}

func (m *Model) clearResults() {
	m.stop()
	m.progress.Reset()
	m.recs, m.triage, m.message = nil, nil, ""
	m.refresh()
}

func (m *Model) stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel, m.events = nil, nil
}

func (m *Model) startRecommend() tea.Cmd {
	c := m.selected()
	if c == nil {
		return nil
	}
	m.stop()
	m.progress.Reset()
	m.recs = nil
	m.status = "Finding resources for " + c.EmployeeName + "..."
	m.refresh()

	ctx, a, id := m.ctx, m.assistant, c.ID
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(ctx)
		sink := stream.NewChannel(ctx, 16)
		go func() {
			defer sink.Close()
			a.StreamRecommend(ctx, id, sink)
		}()
		return streamStartedMsg{events: sink.Events(), cancel: cancel}
	}
}

func waitForEvent(events <-chan stream.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		return eventMsg{event: e, ok: ok}
	}
}

func (m *Model) handleEvent(msg eventMsg) tea.Cmd {
	if m.events == nil {
		return nil
	}
	if !msg.ok {
		m.stop()
		return nil
	}
	e := msg.event
	switch e.Kind() {
	case "token":
		m.progress.WriteString(e.Token)
		m.refresh()
		return waitForEvent(m.events)
	case "error":
		m.status = "Error: " + e.Err
	case "done":
		if recs, ok := e.Result.([]domain.Recommendation); ok {
			m.recs = recs
		}
		m.status = fmt.Sprintf("%d recommendations", len(m.recs))
	}
	m.stop()
	m.refresh()
	return nil
}

func (m *Model) runTriage(caseID, text string) tea.Cmd {
	ctx, a := m.ctx, m.assistant
	return func() tea.Msg {
		res, err := a.Triage(ctx, caseID, text)
		return triageMsg{message: text, result: res, err: err}
	}
}

// View renders the case list, the current results and the input box.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Financial Assistance Console")
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + m.renderCases() + "\n" + resultBoxStyle.Render(m.viewport.View()) +
		"\n" + queryBoxStyle.Render(m.input.View()) + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderResults())
}

func (m *Model) renderCases() string {
	var b strings.Builder
	for i, c := range m.cases {
		line := fmt.Sprintf("%-9s %-20s %-8s %s", c.ID, c.EmployeeName, c.Urgency, joinCategories(c.Categories))
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("▸ " + line))
		} else {
			b.WriteString(urgencyStyle(c.Urgency).Render("  " + line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderResults() string {
	var b strings.Builder
	if m.triage != nil {
		t := m.triage
		fmt.Fprintf(&b, "Urgency %s  priority %d  sentiment %s\n", t.Urgency, t.PriorityScore, t.Sentiment)
		if len(t.RedFlags) > 0 {
			b.WriteString(urgencyStyle(domain.UrgencyCritical).Render("Red flags: "+strings.Join(t.RedFlags, ", ")) + "\n")
		}
		terms := strings.Join(t.Categories, " ") + " " + strings.Join(t.RedFlags, " ")
		b.WriteString("\n" + highlightBestSentence(m.message, terms) + "\n\n")
		b.WriteString("Suggested reply: " + t.SuggestedResponse + "\n\n")
	}
	b.WriteString(m.progress.String())
	for i, r := range m.recs {
		fmt.Fprintf(&b, "%d. %s  relevance=%.2f  success=%.2f\n   %s\n", i+1, r.Name, r.RelevanceScore, r.EstimatedSuccess, r.Reasoning)
	}
	if b.Len() == 0 {
		return "No results yet."
	}
	return b.String()
}

func joinCategories(cats []domain.Category) string {
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}

func urgencyStyle(u domain.Urgency) lipgloss.Style {
	switch u {
	case domain.UrgencyCritical:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	case domain.UrgencyHigh:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	}
	return lipgloss.NewStyle()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	selectedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

// highlightBestSentence emphasises the sentence sharing the most words with
// query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := summarizer.Sentences(text)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	out := make([]string, len(sentences))
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			out[i] = highlightStyle.Render(sent)
		} else {
			out[i] = sent
		}
	}
	return strings.Join(out, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
