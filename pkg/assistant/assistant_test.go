package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-genai/campusrag/internal/models"
	"github.com/campus-genai/campusrag/pkg/llm"
	"github.com/campus-genai/campusrag/pkg/rbac"
	"github.com/campus-genai/campusrag/pkg/store"
)

type fakeRetriever struct {
	matches  []models.Match
	err      error
	summary  map[rbac.Role]int64
	called   bool
	gotQuery string
	gotRole  rbac.Role
	gotLimit int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, role rbac.Role, limit int) ([]models.Match, error) {
	f.called = true
	f.gotQuery = query
	f.gotRole = role
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func (f *fakeRetriever) AccessSummary(ctx context.Context, role rbac.Role) (map[rbac.Role]int64, error) {
	return f.summary, f.err
}

type fakeSynth struct {
	text   string
	chunks []string
	err    error
	called bool
	gotReq llm.Request
}

func (f *fakeSynth) Generate(ctx context.Context, req llm.Request) (string, error) {
	f.called = true
	f.gotReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeSynth) GenerateStream(ctx context.Context, req llm.Request, fn func(chunk string) error) (string, error) {
	f.called = true
	f.gotReq = req
	if f.err != nil {
		return "", f.err
	}
	chunks := f.chunks
	if chunks == nil {
		chunks = []string{f.text}
	}
	var full strings.Builder
	for _, c := range chunks {
		if err := fn(c); err != nil {
			return "", err
		}
		full.WriteString(c)
	}
	return full.String(), nil
}

type fakeHistory struct {
	saved   []models.Exchange
	recent  []models.Exchange
	saveErr error
}

func (f *fakeHistory) SaveExchange(ctx context.Context, userID, question, answer string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, models.Exchange{UserID: userID, Question: question, Answer: answer})
	return nil
}

func (f *fakeHistory) RecentExchanges(ctx context.Context, userID string, limit int) ([]models.Exchange, error) {
	return f.recent, nil
}

func feeMatches() []models.Match {
	return []models.Match{
		{Record: models.Record{ID: "fees_0", Source: "fees.docx", Content: "Tuition is 9000 per year."}, Score: 0.92},
		{Record: models.Record{ID: "fees_1", Source: "fees.docx", Content: "Late fees are 50."}, Score: 0.88},
		{Record: models.Record{ID: "handbook_0", Source: "handbook.pdf", Content: "Fees are due in August."}, Score: 0.71},
	}
}

func parentUser() models.User {
	return models.User{ID: "u-1", Username: "alice", Role: rbac.Parent}
}

func TestAskGroundsAnswerInRetrievedFragments(t *testing.T) {
	retr := &fakeRetriever{matches: feeMatches()}
	synth := &fakeSynth{text: "Tuition is 9000 per year, due in August."}
	hist := &fakeHistory{}
	a := New(retr, synth, hist, Config{RetrieveLimit: 5}, nil)

	answer, err := a.Ask(context.Background(), parentUser(), "What is the fee structure?", nil)
	require.NoError(t, err)

	assert.Equal(t, "Tuition is 9000 per year, due in August.", answer.Text)
	assert.Equal(t, []string{"fees.docx", "handbook.pdf"}, answer.Sources)
	assert.Len(t, answer.Matches, 3)

	assert.Equal(t, "What is the fee structure?", retr.gotQuery)
	assert.Equal(t, rbac.Parent, retr.gotRole)
	assert.Equal(t, 5, retr.gotLimit)

	assert.Equal(t, "parent", synth.gotReq.Role)
	assert.Equal(t, []string{
		"Tuition is 9000 per year.",
		"Late fees are 50.",
		"Fees are due in August.",
	}, synth.gotReq.Context)

	require.Len(t, hist.saved, 1)
	assert.Equal(t, "u-1", hist.saved[0].UserID)
	assert.Equal(t, "What is the fee structure?", hist.saved[0].Question)
	assert.Equal(t, answer.Text, hist.saved[0].Answer)
}

func TestAskWithNoVisibleContentMentionsRole(t *testing.T) {
	retr := &fakeRetriever{}
	synth := &fakeSynth{}
	a := New(retr, synth, nil, Config{}, nil)

	user := models.User{ID: "u-2", Username: "bob", Role: rbac.Student}
	answer, err := a.Ask(context.Background(), user, "What is the fee structure?", nil)
	require.NoError(t, err)

	assert.Contains(t, answer.Text, "student")
	assert.Empty(t, answer.Sources)
	assert.False(t, synth.called, "no matches must mean no model call")
}

func TestAskDegradesWhenRetrievalIsDown(t *testing.T) {
	retr := &fakeRetriever{err: fmt.Errorf("%w: connection refused", store.ErrUnavailable)}
	synth := &fakeSynth{}
	hist := &fakeHistory{}
	a := New(retr, synth, hist, Config{}, nil)

	answer, err := a.Ask(context.Background(), parentUser(), "What is the fee structure?", nil)
	require.NoError(t, err)

	assert.Equal(t, unavailableMessage, answer.Text)
	assert.False(t, synth.called)
	assert.Empty(t, hist.saved, "degraded replies are not persisted")
}

func TestAskDegradesWhenEmbeddingFails(t *testing.T) {
	retr := &fakeRetriever{err: fmt.Errorf("%w: model not loaded", llm.ErrEmbedding)}
	a := New(retr, &fakeSynth{}, nil, Config{}, nil)

	answer, err := a.Ask(context.Background(), parentUser(), "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, unavailableMessage, answer.Text)
}

func TestAskFallsBackWhenSynthesisFails(t *testing.T) {
	retr := &fakeRetriever{matches: feeMatches()}
	synth := &fakeSynth{err: fmt.Errorf("%w: 429 too many requests", llm.ErrSynthesis)}
	hist := &fakeHistory{}
	a := New(retr, synth, hist, Config{}, nil)

	answer, err := a.Ask(context.Background(), parentUser(), "What is the fee structure?", nil)
	require.NoError(t, err)

	assert.Equal(t, synthesisFallback, answer.Text)
	assert.Equal(t, []string{"fees.docx", "handbook.pdf"}, answer.Sources)
	assert.Empty(t, hist.saved)
}

func TestAskPropagatesInvalidRole(t *testing.T) {
	retr := &fakeRetriever{err: fmt.Errorf("%w: %q", rbac.ErrInvalidRole, "janitor")}
	a := New(retr, &fakeSynth{}, nil, Config{}, nil)

	_, err := a.Ask(context.Background(), models.User{Role: rbac.Role("janitor")}, "anything", nil)
	assert.ErrorIs(t, err, rbac.ErrInvalidRole)
}

func TestAskCarriesOnlyTheHistoryWindow(t *testing.T) {
	retr := &fakeRetriever{matches: feeMatches()}
	synth := &fakeSynth{text: "ok"}
	a := New(retr, synth, nil, Config{HistoryWindow: 2}, nil)

	history := make([]models.Exchange, 5)
	for i := range history {
		history[i] = models.Exchange{
			Question: fmt.Sprintf("q%d", i+1),
			Answer:   fmt.Sprintf("a%d", i+1),
		}
	}

	_, err := a.Ask(context.Background(), parentUser(), "What is the fee structure?", history)
	require.NoError(t, err)

	assert.Equal(t, []llm.Turn{
		{Question: "q4", Answer: "a4"},
		{Question: "q5", Answer: "a5"},
	}, synth.gotReq.History)
}

func TestAskStreamDeliversChunks(t *testing.T) {
	retr := &fakeRetriever{matches: feeMatches()}
	synth := &fakeSynth{chunks: []string{"Tuition ", "is 9000."}}
	a := New(retr, synth, nil, Config{}, nil)

	var got []string
	answer, err := a.AskStream(context.Background(), parentUser(), "What is the fee structure?", nil,
		func(chunk string) error {
			got = append(got, chunk)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, []string{"Tuition ", "is 9000."}, got)
	assert.Equal(t, "Tuition is 9000.", answer.Text)
	assert.Equal(t, []string{"fees.docx", "handbook.pdf"}, answer.Sources)
}

func TestAskStreamDeliversFallbacksAsOneChunk(t *testing.T) {
	retr := &fakeRetriever{}
	a := New(retr, &fakeSynth{}, nil, Config{}, nil)

	var got []string
	answer, err := a.AskStream(context.Background(), parentUser(), "anything", nil,
		func(chunk string) error {
			got = append(got, chunk)
			return nil
		})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, answer.Text, got[0])
}

func TestEmptyQuestionShortCircuits(t *testing.T) {
	retr := &fakeRetriever{}
	synth := &fakeSynth{}
	hist := &fakeHistory{}
	a := New(retr, synth, hist, Config{}, nil)

	answer, err := a.Ask(context.Background(), parentUser(), "   ", nil)
	require.NoError(t, err)

	assert.Contains(t, answer.Text, "ask a question")
	assert.False(t, retr.called)
	assert.False(t, synth.called)
	assert.Empty(t, hist.saved)
}

func TestHistorySeedsFromStore(t *testing.T) {
	hist := &fakeHistory{recent: []models.Exchange{{Question: "q", Answer: "a"}}}
	a := New(&fakeRetriever{}, &fakeSynth{}, hist, Config{}, nil)

	got, err := a.History(context.Background(), parentUser())
	require.NoError(t, err)
	assert.Equal(t, hist.recent, got)

	bare := New(&fakeRetriever{}, &fakeSynth{}, nil, Config{}, nil)
	got, err = bare.History(context.Background(), parentUser())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPersistFailureDoesNotFailTheAnswer(t *testing.T) {
	retr := &fakeRetriever{matches: feeMatches()}
	synth := &fakeSynth{text: "ok"}
	hist := &fakeHistory{saveErr: errors.New("disk full")}
	a := New(retr, synth, hist, Config{}, nil)

	answer, err := a.Ask(context.Background(), parentUser(), "What is the fee structure?", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", answer.Text)
}

func TestAccessReportsAccessibleCounts(t *testing.T) {
	retr := &fakeRetriever{summary: map[rbac.Role]int64{rbac.Parent: 2}}
	a := New(retr, &fakeSynth{}, nil, Config{}, nil)

	got, err := a.Access(context.Background(), rbac.Parent)
	require.NoError(t, err)
	assert.Equal(t, map[rbac.Role]int64{rbac.Parent: 2}, got)
}
