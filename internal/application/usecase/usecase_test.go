package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/application/usecase"
	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/service"
	"github.com/niceassistant/assistant/internal/domain/valueobject"
	"github.com/niceassistant/assistant/internal/infrastructure/config"
	"github.com/niceassistant/assistant/internal/infrastructure/eventbus"
	"github.com/niceassistant/assistant/internal/infrastructure/persistence"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

// fakeChatModel 模拟聊天模型
type fakeChatModel struct {
	mu       sync.Mutex
	reply    string
	err      error
	models   []string
	calls    int
	model    string
	messages []service.ChatMessage
	opts     valueobject.SamplingOptions
}

func (f *fakeChatModel) Chat(_ context.Context, model string, messages []service.ChatMessage, opts valueobject.SamplingOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.model = model
	f.messages = messages
	f.opts = opts
	return f.reply, f.err
}

func (f *fakeChatModel) ListModels(context.Context) ([]string, error) {
	return f.models, nil
}

// fakeDispatcher 模拟媒体分发
type fakeDispatcher struct {
	mu          sync.Mutex
	media       *service.GeneratedMedia
	err         error
	transcript  string
	imageCalls  int
	videoCalls  int
	prompt      string
	speech      service.SpeechRequest
	speechVia   valueobject.SpeechProvider
	transcribed valueobject.TranscriptionProvider
}

func (f *fakeDispatcher) Synthesize(_ context.Context, p valueobject.SpeechProvider, req service.SpeechRequest) (*service.GeneratedMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speechVia = p
	f.speech = req
	return f.media, f.err
}

func (f *fakeDispatcher) Transcribe(_ context.Context, p valueobject.TranscriptionProvider, _ service.TranscriptionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcribed = p
	return f.transcript, f.err
}

func (f *fakeDispatcher) GenerateImage(_ context.Context, _ valueobject.ImageProvider, prompt string) (*service.GeneratedMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls++
	f.prompt = prompt
	return f.media, f.err
}

func (f *fakeDispatcher) GenerateVideo(ctx context.Context, _ valueobject.VideoProvider, prompt string, _ *service.MediaContent) (*service.GeneratedMedia, error) {
	f.mu.Lock()
	f.videoCalls++
	f.prompt = prompt
	f.mu.Unlock()
	if fn := service.VideoListenerFrom(ctx); fn != nil {
		fn(service.VideoTransition{JobID: "vid_1", From: service.VideoQueued, To: service.VideoCompleted, Poll: 1})
	}
	return f.media, f.err
}

type fakeBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (f *fakeBlobs) Store(_ context.Context, data []byte, ext string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = map[string][]byte{}
	}
	handle := fmt.Sprintf("blob-%d%s", len(f.data)+1, ext)
	f.data[handle] = data
	return handle, nil
}

func (f *fakeBlobs) Read(_ context.Context, handle string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[handle], nil
}

// recordingBus 同步记录事件
type recordingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *recordingBus) Publish(_ context.Context, e eventbus.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) Subscribe(string, eventbus.Handler) func() { return func() {} }
func (b *recordingBus) Close()                                     {}

func (b *recordingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type())
	}
	return out
}

func (b *recordingBus) payloadOf(eventType string) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e.Type() == eventType {
			return e.Payload()
		}
	}
	return nil
}

type harness struct {
	repos      *persistence.MemoryRepositories
	model      *fakeChatModel
	dispatcher *fakeDispatcher
	blobs      *fakeBlobs
	bus        *recordingBus
	converse   *usecase.ConverseUseCase
	media      usecase.MediaDeps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repos:      persistence.NewMemoryRepositories(),
		model:      &fakeChatModel{reply: "Hello there.", models: []string{"qwen2.5"}},
		dispatcher: &fakeDispatcher{media: &service.GeneratedMedia{Data: []byte("png"), Ext: ".png", ContentType: "image/png", Provider: "openai"}},
		blobs:      &fakeBlobs{},
		bus:        &recordingBus{},
	}
	h.media = usecase.MediaDeps{
		Dispatcher: h.dispatcher,
		Blobs:      h.blobs,
		Artifacts:  h.repos.Artifacts,
		Bus:        h.bus,
		Defaults:   valueobject.ProviderDefaults{OpenAIAPIKey: "sk-server"},
	}
	h.converse = usecase.NewConverseUseCase(usecase.ConverseDeps{
		Chats:     h.repos.Chats,
		Messages:  h.repos.Messages,
		Memories:  h.repos.Memories,
		Personas:  h.repos.Personas,
		Settings:  h.repos.Settings,
		ChatModel: h.model,
		Media:     h.media,
		Config:    config.ConversationConfig{HistoryLimit: 20, ChatMemoryWindow: 12, TitleMaxLen: 40, FallbackModel: "llama3"},
		Now:       fixedNow,
	}, zap.NewNop())
	return h
}

func (h *harness) saveSettings(t *testing.T, userID string, mutate func(s *entity.Settings)) {
	t.Helper()
	s := entity.DefaultSettings(userID)
	mutate(s)
	require.NoError(t, h.repos.Settings.Save(context.Background(), s))
}

func (h *harness) savePersona(t *testing.T, userID, id, name string) *entity.Persona {
	t.Helper()
	p, err := entity.NewPersona(id, userID, name, testNow)
	require.NoError(t, err)
	require.NoError(t, h.repos.Personas.Save(context.Background(), p))
	return p
}

func (h *harness) transcript(t *testing.T, chatID string) []*entity.Message {
	t.Helper()
	msgs, err := h.repos.Messages.Recent(context.Background(), chatID, 100)
	require.NoError(t, err)
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs
}

func joinedSystem(msgs []service.ChatMessage) string {
	if len(msgs) == 0 || msgs[0].Role != "system" {
		return ""
	}
	return msgs[0].Content
}
