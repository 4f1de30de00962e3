package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"finassist/internal/catalog"
	"finassist/internal/domain"
	"finassist/internal/embedding/tfidf"
	"finassist/internal/narrative"
	"finassist/internal/repository/memory"
	"finassist/internal/retrieval"
	"finassist/internal/service"
	"finassist/internal/stream"
	"finassist/internal/triage"
	vmemory "finassist/internal/vectorstore/memory"
)

var now = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type fixture struct {
	assistant *service.Assistant
	cases     *memory.CaseRepository
}

func newFixture(t *testing.T, withResources bool, opts ...service.Option) fixture {
	t.Helper()
	ctx := context.Background()
	seed, err := catalog.Seed(now)
	require.NoError(t, err)

	cases := memory.NewCaseRepository()
	for _, c := range seed.Cases {
		require.NoError(t, cases.Append(ctx, c))
	}
	resources := memory.NewResourceRepository()
	if withResources {
		for _, r := range seed.Resources {
			require.NoError(t, resources.Append(ctx, r))
		}
	}

	logger := zaptest.NewLogger(t)
	r := retrieval.New(tfidf.NewEmbedder(), vmemory.NewStorage(), resources, retrieval.Config{},
		retrieval.WithPastCases(vmemory.NewStorage()), retrieval.WithLogger(logger))
	opts = append([]service.Option{
		service.WithLogger(logger),
		service.WithClock(func() time.Time { return now }),
	}, opts...)
	a := service.New(cases, resources, r, opts...)
	require.NoError(t, a.Index(ctx))
	return fixture{assistant: a, cases: cases}
}

func TestRecommend_RankedAndBounded(t *testing.T) {
	f := newFixture(t, true)

	recs, err := f.assistant.Recommend(context.Background(), "case_1")
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.LessOrEqual(t, len(recs), 5)
	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i-1].RelevanceScore, recs[i].RelevanceScore)
	}
	for _, r := range recs {
		assert.InDelta(t, 0.5, r.EstimatedSuccess, 0.5)
		assert.Contains(t, r.Reasoning, "rent")
	}
}

func TestRecommend_UnknownCase(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.assistant.Recommend(context.Background(), "case_404")
	assert.ErrorIs(t, err, domain.ErrCaseNotFound)
}

func TestRecommend_EmptyCatalog(t *testing.T) {
	f := newFixture(t, false)
	recs, err := f.assistant.Recommend(context.Background(), "case_1")
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestStreamRecommend_ProgressThenResult(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.assistant.AttachDocument(ctx, "case_1", "notice.txt", "Three day notice to pay rent or quit.")
	require.NoError(t, err)

	rec := &stream.Recorder{}
	status := f.assistant.StreamRecommend(ctx, "case_1", rec)
	assert.Equal(t, stream.Completed, status)

	events := rec.Events()
	require.NotEmpty(t, events)
	tokens := make([]string, 0, len(events))
	for _, e := range events[:len(events)-1] {
		require.Equal(t, "token", e.Kind())
		tokens = append(tokens, e.Token)
	}
	assert.Equal(t, "🔍 Analyzing financial profile...\n", tokens[0])
	assert.Contains(t, tokens, "📋 Found 1 uploaded documents\n")
	assert.Contains(t, tokens, "✅ Found 5 relevant resources\n")
	assert.Equal(t, "✅ Complete!\n\n", tokens[len(tokens)-1])

	last := events[len(events)-1]
	assert.Equal(t, "done", last.Kind())
	recs, ok := last.Result.([]domain.Recommendation)
	require.True(t, ok)
	assert.Len(t, recs, 5)
}

func TestStreamRecommend_UnknownCase(t *testing.T) {
	f := newFixture(t, true)
	rec := &stream.Recorder{}

	status := f.assistant.StreamRecommend(context.Background(), "case_404", rec)
	assert.Equal(t, stream.Failed, status)
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, "Case not found", rec.Events()[0].Err)
}

type disconnectingSink struct {
	after int
	sent  []stream.Event
}

func (s *disconnectingSink) Send(e stream.Event) error {
	if len(s.sent) >= s.after {
		return errors.New("client went away")
	}
	s.sent = append(s.sent, e)
	return nil
}

func TestStreamTriage_StopsAfterDisconnect(t *testing.T) {
	f := newFixture(t, true)
	sink := &disconnectingSink{after: 2}

	status := f.assistant.StreamTriage(context.Background(), "case_1", "I got an eviction notice", sink)
	assert.Equal(t, stream.Disconnected, status)
	require.Len(t, sink.sent, 2)
	assert.Equal(t, "📖 Reading message...\n", sink.sent[0].Token)
	assert.Equal(t, "📄 Checking uploaded documents...\n", sink.sent[1].Token)
}

func TestStreamTriage_Result(t *testing.T) {
	f := newFixture(t, true)
	rec := &stream.Recorder{}

	status := f.assistant.StreamTriage(context.Background(), "case_4",
		"My electricity is going to be shut off next week. I owe $800", rec)
	assert.Equal(t, stream.Completed, status)

	events := rec.Events()
	require.Len(t, events, 8)
	assert.Equal(t, "✅ Analysis complete!\n\n", events[6].Token)
	res, ok := events[7].Result.(domain.TriageResult)
	require.True(t, ok)
	assert.Equal(t, []string{triage.LabelUtilities}, res.Categories)
	assert.Equal(t, domain.UrgencyCritical, res.Urgency)
}

func TestTriage_UsesDocuments(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	res, err := f.assistant.Triage(ctx, "case_3", "Can we talk tomorrow?")
	require.NoError(t, err)
	assert.Empty(t, res.RedFlags)

	_, err = f.assistant.AttachDocument(ctx, "case_3", "summons.txt", "You are summoned to appear in court on May 2.")
	require.NoError(t, err)
	res, err = f.assistant.Triage(ctx, "case_3", "Can we talk tomorrow?")
	require.NoError(t, err)
	assert.Equal(t, []string{triage.FlagLegal}, res.RedFlags)
	assert.Equal(t, domain.UrgencyCritical, res.Urgency)
}

func TestSendMessage_TriagesEmployeeMessages(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	msg, err := f.assistant.SendMessage(ctx, "case_2", domain.SenderEmployee, "The hospital bill is in collections")
	require.NoError(t, err)
	require.NotNil(t, msg.Analysis)
	assert.Contains(t, msg.Analysis.Categories, triage.LabelMedical)
	assert.Equal(t, now, msg.Timestamp)

	reply, err := f.assistant.SendMessage(ctx, "case_2", domain.SenderAssistant, "Let's look at options.")
	require.NoError(t, err)
	assert.Nil(t, reply.Analysis)

	c, err := f.assistant.GetCase(ctx, "case_2")
	require.NoError(t, err)
	assert.Equal(t, reply.ID, c.Messages[len(c.Messages)-1].ID)

	_, err = f.assistant.SendMessage(ctx, "case_2", domain.Sender("bot"), "x")
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)
	_, err = f.assistant.SendMessage(ctx, "case_404", domain.SenderEmployee, "x")
	assert.ErrorIs(t, err, domain.ErrCaseNotFound)
}

func TestCreateCase_Defaults(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	c, err := f.assistant.CreateCase(ctx, service.NewCase{
		EmployeeName: " Dana Lee ",
		Employer:     "Kaiser",
		Snapshot:     domain.FinancialSnapshot{AnnualIncome: 40000, CreditScore: 700},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.ID, "case_"))
	assert.Equal(t, "Dana Lee", c.EmployeeName)
	assert.Equal(t, domain.UrgencyMedium, c.Urgency)
	assert.Equal(t, []domain.Category{domain.CategoryOther}, c.Categories)
	assert.Equal(t, domain.StatusActive, c.Status)

	cases, err := f.assistant.ListCases(ctx)
	require.NoError(t, err)
	assert.Len(t, cases, 6)

	_, err = f.assistant.CreateCase(ctx, service.NewCase{Snapshot: domain.FinancialSnapshot{Savings: -1}})
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)
}

func TestAttachDocument_PreviewAndListing(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	text := strings.Repeat("Past due balance of $450 on your account. ", 10)

	up, err := f.assistant.AttachDocument(ctx, "case_4", "bill.txt", text)
	require.NoError(t, err)
	require.NotNil(t, up.Preview)
	assert.Equal(t, 200, len([]rune(*up.Preview)))
	assert.True(t, up.HasText)
	assert.Equal(t, []string{"$450"}, up.Digest.Amounts)

	empty, err := f.assistant.AttachDocument(ctx, "case_4", "scan.png", "")
	require.NoError(t, err)
	assert.Nil(t, empty.Preview)
	assert.False(t, empty.HasText)

	docs, err := f.assistant.Documents(ctx, "case_4")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "bill.txt", docs[0].Filename)
	assert.Equal(t, up.DocumentID, docs[0].ID)

	_, err = f.assistant.AttachDocument(ctx, "case_404", "x.txt", "x")
	assert.ErrorIs(t, err, domain.ErrCaseNotFound)
}

func TestNotes(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.assistant.SaveNotes(ctx, "case_1", "Called landlord"))
	notes, err := f.assistant.Notes(ctx, "case_1")
	require.NoError(t, err)
	assert.Equal(t, "Called landlord", notes)
	assert.ErrorIs(t, f.assistant.SaveNotes(ctx, "case_404", "x"), domain.ErrCaseNotFound)
}

func TestAssistConversation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	hints, err := f.assistant.AssistConversation(ctx, "case_1", "  ")
	require.NoError(t, err)
	assert.Equal(t, []string{service.HintEmpty}, hints)

	hints, err = f.assistant.AssistConversation(ctx, "case_1", "Sorry, no funds.")
	require.NoError(t, err)
	assert.Equal(t, []string{service.HintTone, service.HintDetail, service.HintERAP}, hints)

	hints, err = f.assistant.AssistConversation(ctx, "case_4", "You qualify for LIHEAP and the PG&E CARE discount on your bill.")
	require.NoError(t, err)
	assert.Equal(t, []string{service.HintLooksGood}, hints)

	hints, err = f.assistant.AssistConversation(ctx, "case_4", "Let's review your budget together this week.")
	require.NoError(t, err)
	assert.Equal(t, []string{service.HintLIHEAP}, hints)

	_, err = f.assistant.AssistConversation(ctx, "case_404", "hello")
	assert.ErrorIs(t, err, domain.ErrCaseNotFound)
}

func TestInsights_SeededCaseload(t *testing.T) {
	f := newFixture(t, true)

	out, err := f.assistant.Insights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"📊 3 of 5 cases need immediate attention (60%)",
		"💰 Average debt-to-income ratio: 20.6%",
		"📈 Most common issue: rent (1 cases)",
		"🎯 Average credit score: 580 - focus on credit rebuilding programs",
	}, out)

	_, err = f.assistant.AttachDocument(context.Background(), "case_2", "eob.txt", "Explanation of benefits")
	require.NoError(t, err)
	out, err = f.assistant.Insights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "📄 1 documents uploaded across cases - AI has more context!", out[4])
}

func TestInsights_EmptyCaseload(t *testing.T) {
	r := retrieval.New(tfidf.NewEmbedder(), vmemory.NewStorage(), memory.NewResourceRepository(), retrieval.Config{})
	a := service.New(memory.NewCaseRepository(), memory.NewResourceRepository(), r)

	out, err := a.Insights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "📊 0 of 0 cases need immediate attention (0%)", out[0])
	assert.Equal(t, "💰 Average debt-to-income ratio: 0.0%", out[1])
}

func TestAnalytics(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.assistant.RecordOutcome(ctx, domain.Outcome{CaseID: "case_5", Resolution: "CalFresh approved", Success: true}))

	out, err := f.assistant.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, out.TotalActiveCases)
	assert.Equal(t, 1, out.CriticalCases)
	assert.Equal(t, service.DefaultMonthlySummary, out.ThisMonth)
	assert.Equal(t, 1, out.CategoryBreakdown["rent"])
	assert.Equal(t, 0, out.CategoryBreakdown["food"])
	assert.Len(t, out.CategoryBreakdown, len(domain.Categories))
}

func TestRecordOutcome_IndexesPastCase(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	none, err := f.assistant.SimilarCases(ctx, "case_1", 3)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, f.assistant.RecordOutcome(ctx, domain.Outcome{
		CaseID: "case_2", Resolution: "Medical debt settled", ResourcesUsed: []string{"res_6"}, Success: true,
	}))

	c, err := f.assistant.GetCase(ctx, "case_2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, c.Status)
	require.Len(t, f.cases.Outcomes(), 1)

	similar, err := f.assistant.SimilarCases(ctx, "case_1", 3)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, "case_case_2", similar[0].ID)

	assert.ErrorIs(t, f.assistant.RecordOutcome(ctx, domain.Outcome{CaseID: "case_404"}), domain.ErrCaseNotFound)
}

func TestDebugSearch(t *testing.T) {
	f := newFixture(t, true)

	report := f.assistant.DebugSearch(context.Background())
	assert.Equal(t, service.DebugHousingQuery, report.Query1.Text)
	assert.Len(t, report.Query1.TopResults, 3)
	assert.Len(t, report.Query2.Distances, 3)
}

type failingNarrative struct{ *narrative.Mock }

func (failingNarrative) Triage(ctx context.Context, message string, c *domain.Case) (domain.TriageResult, error) {
	return narrative.DefaultTriage(), domain.ErrNarrativeGeneration
}

func (failingNarrative) Recommend(ctx context.Context, c *domain.Case, candidates []domain.Candidate, limit int) ([]domain.Recommendation, error) {
	return []domain.Recommendation{}, domain.ErrNarrativeGeneration
}

func TestProviders_Modes(t *testing.T) {
	ctx := context.Background()

	tp, rp := service.Providers(service.ModeDeterministic, narrative.NewMock(), nil, nil)
	assert.IsType(t, service.DeterministicTriage{}, tp)
	assert.IsType(t, service.DeterministicRanking{}, rp)

	tp, rp = service.Providers(service.ModeMock, narrative.NewMock(), nil, nil)
	f := newFixture(t, true, service.WithTriage(tp), service.WithRanking(rp))
	res, err := f.assistant.Triage(ctx, "case_3", "hello")
	require.NoError(t, err)
	assert.Equal(t, 10, res.PriorityScore)
	recs, err := f.assistant.Recommend(ctx, "case_3")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "res_1", recs[0].ResourceID)

	tp, rp = service.Providers(service.ModeLLM, failingNarrative{narrative.NewMock()}, nil, zaptest.NewLogger(t))
	f = newFixture(t, true, service.WithTriage(tp), service.WithRanking(rp))
	res, err = f.assistant.Triage(ctx, "case_1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{triage.LabelGeneral}, res.Categories)
	recs, err = f.assistant.Recommend(ctx, "case_1")
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)

	tp, _ = service.Providers(service.ModeLLM, nil, nil, nil)
	assert.IsType(t, service.DeterministicTriage{}, tp)
}

func TestNarrativeOperations(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	sug, err := f.assistant.SuggestResponse(ctx, "case_1", "I can help you with rent")
	require.NoError(t, err)
	assert.NotEmpty(t, sug.NextSteps)

	patterns, err := f.assistant.DetectPatterns(ctx)
	require.NoError(t, err)
	assert.Len(t, patterns.Insights, 1)
}
