package repl

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/application/usecase"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

type fakeConversation struct {
	inputs []usecase.TurnInput
	err    error
}

func (f *fakeConversation) Execute(_ context.Context, in usecase.TurnInput) (*usecase.TurnResult, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &usecase.TurnResult{ChatID: "chat-1", Reply: "pong", Intent: "chat", Model: "llama3"}, nil
}

func run(t *testing.T, conv Conversation, input string) string {
	t.Helper()
	var out bytes.Buffer
	r := New(conv, Config{UserID: "me"}, strings.NewReader(input), &out, zap.NewNop())
	require.NoError(t, r.Run(context.Background()))
	return out.String()
}

func TestRunSendsTurnsOnOneChat(t *testing.T) {
	conv := &fakeConversation{}

	out := run(t, conv, "ping\nping again\n")

	require.Len(t, conv.inputs, 2)
	assert.Equal(t, "me", conv.inputs[0].UserID)
	assert.Empty(t, conv.inputs[0].ChatID)
	assert.Equal(t, "chat-1", conv.inputs[1].ChatID)
	assert.Contains(t, out, "pong")
	assert.Contains(t, out, "llama3")
}

func TestCommandsShapeTheNextTurn(t *testing.T) {
	conv := &fakeConversation{}

	run(t, conv, "hi\n/new\n/model qwen2.5\n/memory off\n/persona p1\nhello\n")

	require.Len(t, conv.inputs, 2)
	last := conv.inputs[1]
	assert.Empty(t, last.ChatID)
	assert.Equal(t, "qwen2.5", last.Model)
	assert.Equal(t, "off", last.MemoryMode)
	assert.Equal(t, "p1", last.PersonaID)
}

func TestInvalidMemoryModeIsRejected(t *testing.T) {
	conv := &fakeConversation{}

	out := run(t, conv, "/memory sometimes\nhi\n")

	assert.Contains(t, out, "memory mode must be auto, on or off")
	require.Len(t, conv.inputs, 1)
	assert.Empty(t, conv.inputs[0].MemoryMode)
}

func TestExitStopsReading(t *testing.T) {
	conv := &fakeConversation{}

	run(t, conv, "/exit\nnever sent\n")

	assert.Empty(t, conv.inputs)
}

func TestTurnErrorShowsMessage(t *testing.T) {
	conv := &fakeConversation{err: domainErrors.NewInvalidInputError("text is required")}

	out := run(t, conv, "x\n")

	assert.Contains(t, out, "text is required")
}

func TestStatusAndHelp(t *testing.T) {
	out := run(t, &fakeConversation{}, "/status\n/help\n/bogus\n")

	assert.Contains(t, out, "Status")
	assert.Contains(t, out, "/persona [id]")
	assert.Contains(t, out, "unknown command")
}
