package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/supportdesk/pkg/models"
	"github.com/pario-ai/supportdesk/pkg/policy"
)

type fakeRetriever struct {
	docs  []models.Document
	err   error
	calls int
	topK  int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, topK int) ([]models.Document, error) {
	f.calls++
	f.topK = topK
	return f.docs, f.err
}

type fakeGenerator struct {
	answer string
	err    error
	calls  int
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, _ []models.Document) (string, error) {
	f.calls++
	return f.answer, f.err
}

type recordingSink struct {
	tickets []models.TicketRecord
	err     error
}

func (r *recordingSink) Submit(_ context.Context, t models.TicketRecord) error {
	r.tickets = append(r.tickets, t)
	return r.err
}

func docs(contents ...string) []models.Document {
	out := make([]models.Document, len(contents))
	for i, c := range contents {
		out[i] = models.Document{Content: c, Source: "kb.md", ChunkIndex: i}
	}
	return out
}

func TestDirectEscalation(t *testing.T) {
	r := &fakeRetriever{docs: docs("x")}
	g := &fakeGenerator{answer: "y"}
	sink := &recordingSink{}
	e := New(r, g, WithTicketSink(sink))

	st, err := e.Run(context.Background(), "I need to speak to a manager urgently", 3)
	require.NoError(t, err)

	assert.Equal(t, IntentEscalate, st.Intent)
	assert.Equal(t, []Step{StepClassify, StepEscalateDirect, StepEnd}, st.Path)
	require.NotNil(t, st.Ticket)
	assert.Equal(t, "Escalation: I need to speak to a manager urgently", st.Ticket.Subject)
	assert.Equal(t, TicketReason, st.Ticket.Reason)
	assert.Empty(t, st.Ticket.Context)
	assert.Zero(t, r.calls)
	assert.Zero(t, g.calls)
	assert.Equal(t, []string{"Intent: escalate (urgent keywords detected)", "Escalation ticket created"}, st.Trace)
	assert.Len(t, sink.tickets, 1)
}

func TestAnswerEndToEnd(t *testing.T) {
	r := &fakeRetriever{docs: docs("To reset your password, open Settings.")}
	g := &fakeGenerator{answer: strings.Repeat("Open Settings, choose Security, then Reset. ", 7)[:300]}
	e := New(r, g)

	st, err := e.Run(context.Background(), "How do I reset my password?", 3)
	require.NoError(t, err)

	assert.Equal(t, IntentAnswer, st.Intent)
	assert.Equal(t, 0.8, st.Confidence)
	assert.False(t, st.Escalate)
	assert.Nil(t, st.Ticket)
	assert.Equal(t, []Step{StepClassify, StepRetrieve, StepAnswer, StepEnd}, st.Path)
	assert.Equal(t, 3, r.topK)
	assert.Equal(t, []string{
		"Intent: answer (standard query)",
		"Retrieved 1 documents",
		"Answer generated (confidence: 0.80)",
	}, st.Trace)
}

func TestNoDocumentsEscalates(t *testing.T) {
	g := &fakeGenerator{answer: "unused"}
	e := New(&fakeRetriever{}, g)

	st, err := e.Run(context.Background(), "How do I configure SAML?", 3)
	require.NoError(t, err)

	assert.Equal(t, InsufficientInfoAnswer, st.Answer)
	assert.Equal(t, 0.1, st.Confidence)
	assert.True(t, st.Escalate)
	require.NotNil(t, st.Ticket)
	assert.Zero(t, g.calls)
	assert.Equal(t, []Step{StepClassify, StepRetrieve, StepAnswer, StepEscalatePostAnswer, StepEnd}, st.Path)
	assert.Contains(t, st.Trace, "Answer: low confidence (no docs retrieved)")
}

func TestUncertainAnswerEscalatesWithContext(t *testing.T) {
	long := strings.Repeat("a", 700)
	r := &fakeRetriever{docs: docs(long, "second", "third", "fourth")}
	g := &fakeGenerator{answer: "I'm not sure which plan you are on."}
	e := New(r, g)

	st, err := e.Run(context.Background(), "Which plan am I on?", 4)
	require.NoError(t, err)

	assert.Equal(t, 0.3, st.Confidence)
	assert.True(t, st.Escalate)
	require.NotNil(t, st.Ticket)
	parts := strings.Split(st.Ticket.Context, "\n\n")
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 500)
	assert.Equal(t, "third", parts[2])
}

func TestTicketSubjectTruncated(t *testing.T) {
	q := "urgent " + strings.Repeat("é", 200)
	tk := BuildTicket(q, nil)
	assert.Equal(t, 100, len([]rune(strings.TrimPrefix(tk.Subject, "Escalation: "))))
	assert.Equal(t, q, tk.Query)
}

func TestCollaboratorErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")

	e := New(&fakeRetriever{err: boom}, &fakeGenerator{})
	st, err := e.Run(context.Background(), "How do I export data?", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, IntentAnswer, st.Intent)

	e = New(&fakeRetriever{docs: docs("d")}, &fakeGenerator{err: boom})
	_, err = e.Run(context.Background(), "How do I export data?", 3)
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestSinkErrorDoesNotFailRun(t *testing.T) {
	sink := &recordingSink{err: errors.New("ticketing down")}
	e := New(&fakeRetriever{}, &fakeGenerator{}, WithTicketSink(sink))
	st, err := e.Run(context.Background(), "escalate this please", 3)
	require.NoError(t, err)
	assert.NotNil(t, st.Ticket)
}

// The inline scoring and the policy disagree on the same text; both are kept.
func TestAssessAnswerDiffersFromPolicy(t *testing.T) {
	answer := "Not sure, but based on the docs you can upgrade from Billing."
	conf, esc := AssessAnswer(answer)
	assert.Equal(t, 0.3, conf)
	assert.True(t, esc)

	assert.InDelta(t, 0.6, policy.Confidence("q", answer), 1e-9)
	assert.False(t, policy.New().ShouldEscalate("can I upgrade?", answer))

	conf, esc = AssessAnswer("Go to Settings.")
	assert.Equal(t, 0.8, conf)
	assert.False(t, esc)
}
