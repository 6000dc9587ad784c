package prompt

import (
	"strings"

	"repochat-be/pkg/store"
)

// FormatTranscript renders turns as "ROLE: content" lines, oldest first.
func FormatTranscript(turns []store.Turn) string {
	lines := make([]string, len(turns))
	for i, turn := range turns {
		lines[i] = strings.ToUpper(turn.Role) + ": " + turn.Content
	}
	return strings.Join(lines, "\n")
}

// Window keeps the last max turns. max <= 0 keeps everything.
func Window(turns []store.Turn, max int) []store.Turn {
	if max <= 0 || len(turns) <= max {
		return turns
	}
	return turns[len(turns)-max:]
}

// JoinContext concatenates retrieved chunk contents separated by blank lines.
func JoinContext(docs []store.Document) string {
	parts := make([]string, len(docs))
	for i, doc := range docs {
		parts[i] = doc.Content
	}
	return strings.Join(parts, "\n\n")
}

// RewriteBuilder asks the model for a standalone search query.
type RewriteBuilder struct {
	history string
}

func NewRewriteBuilder(history string) *RewriteBuilder {
	return &RewriteBuilder{history: history}
}

func (b *RewriteBuilder) Build() string {
	var prompt strings.Builder

	prompt.WriteString("You are an expert at semantic search. ")
	prompt.WriteString("Given the following conversation history, generate a single, concise search query ")
	prompt.WriteString("that will retrieve the most relevant information from a GitHub repository.\n\n")

	prompt.WriteString("Conversation:\n")
	prompt.WriteString(b.history)
	prompt.WriteString("\n\n")

	prompt.WriteString("Search Query:")
	return prompt.String()
}

// AnswerBuilder conditions the final answer on the transcript and the retrieved context.
type AnswerBuilder struct {
	history string
	context string
}

func NewAnswerBuilder(history, context string) *AnswerBuilder {
	return &AnswerBuilder{history: history, context: context}
}

func (b *AnswerBuilder) Build() string {
	var prompt strings.Builder

	b.writeRole(&prompt)
	b.writeConversation(&prompt)
	b.writeContext(&prompt)
	b.writeInstruction(&prompt)

	return prompt.String()
}

func (b *AnswerBuilder) writeRole(prompt *strings.Builder) {
	prompt.WriteString("You are a helpful assistant analyzing a GitHub repository.\n\n")
}

func (b *AnswerBuilder) writeConversation(prompt *strings.Builder) {
	prompt.WriteString("Conversation so far:\n")
	prompt.WriteString(b.history)
	prompt.WriteString("\n\n")
}

func (b *AnswerBuilder) writeContext(prompt *strings.Builder) {
	prompt.WriteString("Relevant repository context:\n")
	prompt.WriteString(b.context)
	prompt.WriteString("\n\n")
}

func (b *AnswerBuilder) writeInstruction(prompt *strings.Builder) {
	prompt.WriteString("Using the context above, answer the user's latest question clearly and accurately.")
}
