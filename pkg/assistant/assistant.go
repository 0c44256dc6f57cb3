// Package assistant ties retrieval and synthesis into the
// question/answer flow served to portal users.
//
// Every answer is grounded in fragments the retriever already cleared
// for the user's role. When nothing visible matches, the user gets an
// explanation instead of an answer invented from the model's world
// knowledge, and when a backing service is down they get an apology
// instead of an error page.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campus-genai/campusrag/internal/logger"
	"github.com/campus-genai/campusrag/internal/models"
	"github.com/campus-genai/campusrag/pkg/llm"
	"github.com/campus-genai/campusrag/pkg/rbac"
)

const unavailableMessage = "The knowledge base is not available right now. " +
	"Please try again later or contact an administrator."

const synthesisFallback = "I apologize, but I encountered an error while processing " +
	"your request. Please try again."

// Retriever returns role-cleared fragments for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, role rbac.Role, limit int) ([]models.Match, error)
	AccessSummary(ctx context.Context, role rbac.Role) (map[rbac.Role]int64, error)
}

// Synthesizer produces an answer from a grounded request.
type Synthesizer interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
	GenerateStream(ctx context.Context, req llm.Request, fn func(chunk string) error) (string, error)
}

// HistoryStore persists question/answer turns per user. The assistant
// works without one; chat then simply has no memory across sessions.
type HistoryStore interface {
	SaveExchange(ctx context.Context, userID, question, answer string) error
	RecentExchanges(ctx context.Context, userID string, limit int) ([]models.Exchange, error)
}

// Answer is one reply to a user question.
type Answer struct {
	Text    string
	Sources []string
	Matches []models.Match
}

// Config tunes the assistant.
type Config struct {
	RetrieveLimit int // fragments fetched per question
	HistoryWindow int // past turns carried into the prompt
}

// Assistant answers portal questions for authenticated users.
type Assistant struct {
	retriever Retriever
	synth     Synthesizer
	history   HistoryStore
	config    Config
	log       *logger.Logger
}

// New creates an assistant. history may be nil for sessions without
// persistence; a nil log disables logging.
func New(retriever Retriever, synth Synthesizer, history HistoryStore, config Config, log *logger.Logger) *Assistant {
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = 6
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Assistant{
		retriever: retriever,
		synth:     synth,
		history:   history,
		config:    config,
		log:       log,
	}
}

// Ask answers a question for user, grounding the reply in fragments
// visible to the user's role. history is the session's past turns,
// oldest first; only the configured window is carried into the prompt.
func (a *Assistant) Ask(ctx context.Context, user models.User, question string, history []models.Exchange) (Answer, error) {
	return a.answer(ctx, user, question, history, nil)
}

// AskStream behaves like Ask but delivers the answer text through fn
// as it is generated. Fallback messages arrive as a single chunk.
func (a *Assistant) AskStream(ctx context.Context, user models.User, question string, history []models.Exchange, fn func(chunk string) error) (Answer, error) {
	return a.answer(ctx, user, question, history, fn)
}

func (a *Assistant) answer(ctx context.Context, user models.User, question string, history []models.Exchange, fn func(chunk string) error) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return a.deliver(Answer{Text: "Please ask a question about the campus."}, fn)
	}

	matches, err := a.retriever.Retrieve(ctx, question, user.Role, a.config.RetrieveLimit)
	if err != nil {
		if errors.Is(err, rbac.ErrInvalidRole) {
			return Answer{}, err
		}
		a.log.Error("retrieval failed", "user", user.Username, "role", user.Role, "error", err)
		return a.deliver(Answer{Text: unavailableMessage}, fn)
	}

	if len(matches) == 0 {
		answer, err := a.deliver(Answer{Text: emptyMessage(user.Role)}, fn)
		if err != nil {
			return answer, err
		}
		a.persist(ctx, user, question, answer.Text)
		return answer, nil
	}

	req := llm.Request{
		Role:     string(user.Role),
		Question: question,
		Context:  contents(matches),
		History:  window(history, a.config.HistoryWindow),
	}

	var text string
	if fn != nil {
		text, err = a.synth.GenerateStream(ctx, req, fn)
	} else {
		text, err = a.synth.Generate(ctx, req)
	}
	if err != nil {
		a.log.Error("synthesis failed", "user", user.Username, "role", user.Role, "error", err)
		answer := Answer{Text: synthesisFallback, Sources: sources(matches), Matches: matches}
		return a.deliver(answer, fn)
	}

	answer := Answer{Text: text, Sources: sources(matches), Matches: matches}
	a.persist(ctx, user, question, answer.Text)
	return answer, nil
}

// History loads the user's persisted turns for seeding a new session,
// oldest first.
func (a *Assistant) History(ctx context.Context, user models.User) ([]models.Exchange, error) {
	if a.history == nil || user.ID == "" {
		return nil, nil
	}
	return a.history.RecentExchanges(ctx, user.ID, a.config.HistoryWindow)
}

// Access reports how many indexed chunks each of the role's accessible
// audiences has.
func (a *Assistant) Access(ctx context.Context, role rbac.Role) (map[rbac.Role]int64, error) {
	return a.retriever.AccessSummary(ctx, role)
}

// deliver pushes fallback and empty-result texts through the stream
// callback so streaming clients render them like any other answer.
func (a *Assistant) deliver(answer Answer, fn func(chunk string) error) (Answer, error) {
	if fn != nil {
		if err := fn(answer.Text); err != nil {
			return answer, err
		}
	}
	return answer, nil
}

func (a *Assistant) persist(ctx context.Context, user models.User, question, answer string) {
	if a.history == nil || user.ID == "" {
		return
	}
	if err := a.history.SaveExchange(ctx, user.ID, question, answer); err != nil {
		a.log.Warn("failed to persist exchange", "user", user.Username, "error", err)
	}
}

func emptyMessage(role rbac.Role) string {
	return fmt.Sprintf("I apologize, but I couldn't find any information relevant to your query "+
		"that you have access to as a %s. The information may not be in the knowledge base, or your "+
		"role may not have permission to view it. Please try rephrasing your question or contact "+
		"an administrator if you believe you should have access.", role)
}

// sources lists the distinct documents behind the matches in the order
// they first appear.
func sources(matches []models.Match) []string {
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m.Source] {
			continue
		}
		seen[m.Source] = true
		out = append(out, m.Source)
	}
	return out
}

func contents(matches []models.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Content
	}
	return out
}

func window(history []models.Exchange, n int) []llm.Turn {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	turns := make([]llm.Turn, len(history))
	for i, e := range history {
		turns[i] = llm.Turn{Question: e.Question, Answer: e.Answer}
	}
	return turns
}
