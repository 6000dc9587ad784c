package llm_test

import (
	"context"
	"testing"

	"repochat-be/internal/pkg/logger"
	"repochat-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no reasoning", in: "  main.go starts the server \n", want: "main.go starts the server"},
		{name: "leading block", in: "<think>look at cmd/</think>\nThe entrypoint is cmd/rest.", want: "The entrypoint is cmd/rest."},
		{name: "multiline block", in: "<think>\nstep 1\nstep 2\n</think>answer", want: "answer"},
		{name: "upper case tags", in: "<THINK>x</THINK>answer", want: "answer"},
		{name: "two blocks", in: "<think>a</think>one <think>b</think>two", want: "one two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.StripReasoning(tt.in))
		})
	}
}

func TestExtractReasoning(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no reasoning", in: "answer", want: ""},
		{name: "one block", in: "<think> look at cmd/ </think>answer", want: "look at cmd/"},
		{name: "two blocks", in: "<think>a</think>one <THINK>b</THINK>two", want: "a\n\nb"},
		{name: "empty block", in: "<think>  </think>answer", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.ExtractReasoning(tt.in))
		})
	}
}

type debugRecorder struct {
	logger.ILogger
	debug []map[string]interface{}
}

func (r *debugRecorder) Debug(module, message string, details map[string]interface{}) {
	r.debug = append(r.debug, details)
}

func TestWithReasoningFormat(t *testing.T) {
	tests := []struct {
		name       string
		mode       string
		want       string
		wantLogged []map[string]interface{}
	}{
		{name: "raw keeps reasoning", mode: llm.ReasoningRaw, want: "<think>hmm</think>The answer"},
		{name: "parsed strips and logs", mode: llm.ReasoningParsed, want: "The answer", wantLogged: []map[string]interface{}{{"reasoning": "hmm"}}},
		{name: "hidden strips silently", mode: llm.ReasoningHidden, want: "The answer"},
		{name: "unknown mode parses", mode: "verbose", want: "The answer", wantLogged: []map[string]interface{}{{"reasoning": "hmm"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &scriptedProvider{reply: "<think>hmm</think>The answer"}
			rec := &debugRecorder{ILogger: logger.NewNopLogger()}
			p := llm.WithReasoningFormat(fake, tt.mode, rec)

			out, err := p.Generate(context.Background(), "q")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)

			out, err = p.Chat(context.Background(), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)

			if tt.wantLogged == nil {
				assert.Empty(t, rec.debug)
				return
			}
			assert.Equal(t, append(tt.wantLogged, tt.wantLogged...), rec.debug)
		})
	}
}
