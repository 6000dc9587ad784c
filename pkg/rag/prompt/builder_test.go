package prompt

import (
	"testing"

	"repochat-be/pkg/store"

	"github.com/stretchr/testify/assert"
)

func TestFormatTranscript(t *testing.T) {
	turns := []store.Turn{store.UserTurn("What is this?"), store.AssistantTurn("A widget library.")}
	assert.Equal(t, "USER: What is this?\nASSISTANT: A widget library.", FormatTranscript(turns))
	assert.Equal(t, "", FormatTranscript(nil))
}

func TestWindow(t *testing.T) {
	turns := []store.Turn{store.UserTurn("1"), store.AssistantTurn("2"), store.UserTurn("3")}

	assert.Equal(t, turns, Window(turns, 0))
	assert.Equal(t, turns, Window(turns, 5))
	assert.Equal(t, turns[1:], Window(turns, 2))
}

func TestBuilders(t *testing.T) {
	rewrite := NewRewriteBuilder("USER: hi").Build()
	assert.Contains(t, rewrite, "expert at semantic search")
	assert.Contains(t, rewrite, "Conversation:\nUSER: hi\n\n")
	assert.Regexp(t, `Search Query:$`, rewrite)

	answer := NewAnswerBuilder("USER: hi", "ctx-a\n\nctx-b").Build()
	assert.Contains(t, answer, "helpful assistant analyzing a GitHub repository")
	assert.Contains(t, answer, "Conversation so far:\nUSER: hi\n\n")
	assert.Contains(t, answer, "Relevant repository context:\nctx-a\n\nctx-b\n\n")
	assert.Contains(t, answer, "answer the user's latest question")
}

func TestJoinContext(t *testing.T) {
	docs := []store.Document{{Content: "a"}, {Content: "b"}}
	assert.Equal(t, "a\n\nb", JoinContext(docs))
	assert.Equal(t, "", JoinContext(nil))
}
