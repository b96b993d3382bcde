// Package chat routes user messages through the RAG or managed-assistant
// answering path and shapes errors into user-facing language.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prodexhq/prodex/internal/assistant"
	"github.com/prodexhq/prodex/internal/llm"
	"github.com/prodexhq/prodex/internal/search"
	"github.com/prodexhq/prodex/pkg/types"
)

// ErrInvalidRequest is returned for missing tenant, user, message, or an
// unknown mode.
var ErrInvalidRequest = errors.New("invalid chat request")

const (
	// maxContextChars bounds the retrieved context window assembled into
	// the RAG prompt.
	maxContextChars = 6000

	defaultTopK = 5

	noContextReply = "I could not find anything in your workspace related to that. " +
		"Try rephrasing, or add more detail to your product documents."
)

// Reply is the orchestrator's answer to one user message.
type Reply struct {
	Text     string         `json:"reply"`
	Mode     types.ChatMode `json:"mode"`
	ThreadID string         `json:"thread_id,omitempty"`
	RunID    string         `json:"run_id,omitempty"`
	Sources  []string       `json:"sources,omitempty"`
}

// Orchestrator answers chat requests. The RAG path retrieves locally and
// completes with a text model; the managed path delegates to the tenant's
// hosted assistant.
type Orchestrator struct {
	searcher  *search.Service
	generator llm.TextGenerator
	manager   *assistant.Manager
	topK      int
}

// New creates a chat orchestrator.
func New(searcher *search.Service, generator llm.TextGenerator, manager *assistant.Manager) *Orchestrator {
	return &Orchestrator{
		searcher:  searcher,
		generator: generator,
		manager:   manager,
		topK:      defaultTopK,
	}
}

// Respond answers one user message in the requested mode. An empty mode
// defaults to RAG. Errors returned here are already user-safe; use
// UserMessage to render them.
func (o *Orchestrator) Respond(ctx context.Context, tenantID, userID, message string, mode types.ChatMode) (*Reply, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}

	switch mode {
	case types.ModeRAG, "":
		return o.respondRAG(ctx, tenantID, message)
	case types.ModeManaged:
		if userID == "" {
			return nil, fmt.Errorf("%w: user id is required in managed mode", ErrInvalidRequest)
		}
		return o.respondManaged(ctx, tenantID, userID, message)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, mode)
	}
}

func (o *Orchestrator) respondRAG(ctx context.Context, tenantID, message string) (*Reply, error) {
	results, err := o.searcher.Search(ctx, tenantID, message, o.topK)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return &Reply{Text: noContextReply, Mode: types.ModeRAG}, nil
	}

	contextBlock, sources := buildContext(results)
	prompt := buildPrompt(contextBlock, message)

	answer, err := o.generator.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	return &Reply{
		Text:    answer,
		Mode:    types.ModeRAG,
		Sources: sources,
	}, nil
}

func (o *Orchestrator) respondManaged(ctx context.Context, tenantID, userID, message string) (*Reply, error) {
	start := time.Now()

	if _, err := o.manager.EnsureSynced(ctx, tenantID); err != nil {
		return nil, err
	}
	assistantID, err := o.manager.GetOrCreateAssistant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	binding, err := o.manager.GetUserThread(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	turn, err := o.manager.SendMessage(ctx, binding.ThreadID, assistantID, message)
	if err != nil {
		return nil, err
	}

	log.Printf("Managed chat for tenant %s answered in %s", tenantID, time.Since(start).Round(time.Millisecond))
	return &Reply{
		Text:     turn.Content,
		Mode:     types.ModeManaged,
		ThreadID: turn.ThreadID,
		RunID:    turn.RunID,
	}, nil
}

// buildContext assembles the retrieved snippets into a bounded context
// block, most relevant first, and collects the source entity keys.
func buildContext(results []types.SearchResult) (string, []string) {
	var b strings.Builder
	sources := make([]string, 0, len(results))

	for _, r := range results {
		snippet := r.Content
		if b.Len()+len(snippet)+2 > maxContextChars {
			remaining := maxContextChars - b.Len() - 2
			if remaining <= 0 {
				break
			}
			snippet = truncateRunes(snippet, remaining)
		}
		b.WriteString(snippet)
		b.WriteString("\n\n")
		sources = append(sources, fmt.Sprintf("%s/%s", r.EntityType, r.EntityID))
	}
	return strings.TrimRight(b.String(), "\n"), sources
}

// truncateRunes cuts s to at most max bytes without splitting a UTF-8
// sequence.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func buildPrompt(contextBlock, question string) string {
	return "You are a product assistant. Answer the question using only the " +
		"workspace content below. If the content does not cover the question, " +
		"say so briefly.\n\nWorkspace content:\n" + contextBlock +
		"\n\nQuestion: " + question
}

// UserMessage translates an internal error into a short, non-technical
// message safe to show the end user. Provider payloads never pass through.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "That request is missing something. Check the message and try again."
	case errors.Is(err, assistant.ErrRunAlreadyActive):
		return "Still processing your last message. Give it a moment and try again."
	case errors.Is(err, assistant.ErrRunTimeout), errors.Is(err, assistant.ErrIndexingTimeout):
		return "That took longer than expected. Please try again shortly."
	case errors.Is(err, assistant.ErrEmptyCorpus):
		return "Your workspace has no content yet. Add some product documents first."
	case errors.Is(err, llm.ErrCircuitOpen):
		return "The assistant is catching its breath. Please try again in a minute."
	default:
		return "Something went wrong answering that. Please try again."
	}
}
