package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	GroundedTemperature  = 0.7
	DefaultPreviewLength = 150
	ellipsis             = "..."

	// EmptyResponseText replaces a blank completion.
	EmptyResponseText = "The model returned an empty response."
)

const genericInstruction = "You are a helpful assistant. Answer the user's questions clearly and concisely."

const groundedInstruction = "You are a helpful assistant answering questions about a document. " +
	"Use the numbered reference passages below as your source of truth. " +
	"If they do not contain enough information to answer, say that you do not have enough information " +
	"instead of guessing."

// Answer is the user-facing result of one question.
type Answer struct {
	Response   string      `json:"response"`
	References []Reference `json:"references"`
}

// Assembler turns a retrieval result and a conversation into a model answer.
type Assembler struct {
	generator     Generator
	previewLength int
}

func NewAssembler(generator Generator, previewLength int) *Assembler {
	if previewLength <= 0 {
		previewLength = DefaultPreviewLength
	}
	return &Assembler{generator: generator, previewLength: previewLength}
}

// Answer builds the prompt (system, history in order, query last) and calls
// the generator. Any generator failure comes back as *GenerationError.
func (a *Assembler) Answer(ctx context.Context, query string, history []Message, retrieval RetrievalResult) (Answer, error) {
	messages, opts := a.BuildPrompt(query, history, retrieval)

	text, err := a.generator.Complete(ctx, messages, opts)
	if err != nil {
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			return Answer{}, genErr
		}
		return Answer{}, &GenerationError{Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = EmptyResponseText
	}

	refs := make([]Reference, len(retrieval))
	for i, ref := range retrieval {
		ref.Text = Preview(ref.Text, a.previewLength)
		refs[i] = ref
	}
	return Answer{Response: text, References: refs}, nil
}

// BuildPrompt returns the message list and sampling options for one turn.
func (a *Assembler) BuildPrompt(query string, history []Message, retrieval RetrievalResult) ([]Message, CompletionOptions) {
	messages := make([]Message, 0, len(history)+2)
	var opts CompletionOptions

	if len(retrieval) > 0 {
		messages = append(messages, Message{Role: RoleSystem, Content: groundedSystemPrompt(retrieval)})
		opts.Temperature = GroundedTemperature
	} else {
		messages = append(messages, Message{Role: RoleSystem, Content: genericInstruction})
	}

	// only conversation turns; callers cannot add instructions of their own
	for _, m := range history {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case "":
			role = RoleUser
		case RoleUser, RoleAssistant:
		default:
			continue
		}
		messages = append(messages, Message{Role: role, Content: m.Content})
	}
	messages = append(messages, Message{Role: RoleUser, Content: query})
	return messages, opts
}

func groundedSystemPrompt(retrieval RetrievalResult) string {
	var b strings.Builder
	b.WriteString(groundedInstruction)
	b.WriteString("\n\nReferences:")
	for i, ref := range retrieval {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, ref.Text)
	}
	return b.String()
}

// Preview cuts text to at most n runes and appends "..." when it was cut.
func Preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + ellipsis
}

// IsGenericPrompt reports whether messages start with the ungrounded instruction.
func IsGenericPrompt(messages []Message) bool {
	return len(messages) > 0 && messages[0].Role == RoleSystem && messages[0].Content == genericInstruction
}
