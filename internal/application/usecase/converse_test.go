package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niceassistant/assistant/internal/application/usecase"
	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/internal/domain/service"
	"github.com/niceassistant/assistant/internal/domain/valueobject"
	"github.com/niceassistant/assistant/internal/infrastructure/eventbus"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

func TestConverse_ChatTurnCreatesChatAndPersists(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "What's a good name for a cat?"})
	require.NoError(t, err)

	assert.Equal(t, "Hello there.", res.Reply)
	assert.Equal(t, "chat", res.Intent)
	assert.Equal(t, "qwen2.5", res.Model, "first installed model when nothing else is set")
	assert.False(t, res.Failed)
	assert.Nil(t, res.Offer)

	chat, err := h.repos.Chats.Get(ctx, "u1", res.ChatID)
	require.NoError(t, err)
	assert.Equal(t, "What's a good name for a cat?", chat.Title)
	assert.Equal(t, entity.MemoryModeAuto, chat.MemoryMode)

	msgs := h.transcript(t, res.ChatID)
	require.Len(t, msgs, 2)
	assert.Equal(t, entity.RoleUser, msgs[0].Role)
	assert.Equal(t, entity.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello there.", msgs[1].Text)

	// 历史包含当前用户消息
	last := h.model.messages[len(h.model.messages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "What's a good name for a cat?", last.Content)

	assert.Contains(t, h.bus.types(), eventbus.EventTypeTurnCompleted)
	payload, ok := h.bus.payloadOf(eventbus.EventTypeTurnCompleted).(eventbus.TurnCompletedPayload)
	require.True(t, ok)
	assert.Equal(t, "chat", payload.Path)
	assert.Equal(t, res.ChatID, payload.ChatID)
}

func TestConverse_TitleTruncated(t *testing.T) {
	h := newHarness(t)
	text := strings.Repeat("abcdefghij", 6)

	res, err := h.converse.Execute(context.Background(), usecase.TurnInput{UserID: "u1", Text: text})
	require.NoError(t, err)

	chat, err := h.repos.Chats.Get(context.Background(), "u1", res.ChatID)
	require.NoError(t, err)
	assert.Equal(t, text[:40], chat.Title)
}

func TestConverse_SystemMessageMergesMemoriesPersonaAndInstruction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.saveSettings(t, "u1", func(s *entity.Settings) { s.ImageProvider = entity.ProviderOpenAI })
	persona := h.savePersona(t, "u1", "p1", "Ada")

	global, err := entity.NewMemory("m1", "u1", entity.TierGlobal, "", "User lives in Lisbon.", testNow)
	require.NoError(t, err)
	require.NoError(t, h.repos.Memories.Create(ctx, global))
	other, err := entity.NewMemory("m2", "u1", entity.TierPersona, "someone-else", "Not for Ada.", testNow)
	require.NoError(t, err)
	require.NoError(t, h.repos.Memories.Create(ctx, other))

	_, err = h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "hi", PersonaID: persona.ID})
	require.NoError(t, err)

	require.NotEmpty(t, h.model.messages)
	system := joinedSystem(h.model.messages)
	assert.Contains(t, system, "User lives in Lisbon.")
	assert.Contains(t, system, "You are Ada.")
	assert.Contains(t, system, "<generate_image>")
	assert.NotContains(t, system, "Not for Ada.")
	assert.Less(t, strings.Index(system, "User lives in Lisbon."), strings.Index(system, "You are Ada."))

	for _, m := range h.model.messages[1:] {
		assert.NotEqual(t, "system", m.Role, "only one leading system message")
	}
}

func TestConverse_NoImageInstructionWhenDisabled(t *testing.T) {
	h := newHarness(t)

	_, err := h.converse.Execute(context.Background(), usecase.TurnInput{UserID: "u1", Text: "hi"})
	require.NoError(t, err)
	assert.NotContains(t, joinedSystem(h.model.messages), "<generate_image>")
}

func TestConverse_ModelFailureBecomesReply(t *testing.T) {
	h := newHarness(t)
	h.model.err = errors.New("connection refused")

	res, err := h.converse.Execute(context.Background(), usecase.TurnInput{UserID: "u1", Text: "hello"})
	require.NoError(t, err)

	assert.True(t, res.Failed)
	assert.Equal(t, "Model call failed: connection refused", res.Reply)
	msgs := h.transcript(t, res.ChatID)
	require.Len(t, msgs, 2)
	assert.Equal(t, res.Reply, msgs[1].Text)
}

func TestConverse_ModelFailureStillRecordsMemories(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.model.err = errors.New("engine down")

	res, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "my favourite colour is green"})
	require.NoError(t, err)
	require.True(t, res.Failed)

	chatRows, err := h.repos.Memories.Find(ctx, repository.MemoryQuery{UserID: "u1", Tier: entity.TierChat, RefID: res.ChatID})
	require.NoError(t, err)
	assert.Len(t, chatRows, 1)
	facts, err := h.repos.Memories.Find(ctx, repository.MemoryQuery{UserID: "u1", Tier: entity.TierGlobal})
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}

func TestConverse_HistoryIsLimitPlusCurrentMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "turn 0", MemoryMode: "off"})
	require.NoError(t, err)
	for i := 1; i <= 11; i++ {
		_, err = h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", ChatID: res.ChatID, Text: fmt.Sprintf("turn %d", i)})
		require.NoError(t, err)
	}

	var history []service.ChatMessage
	for _, m := range h.model.messages {
		if m.Role != "system" {
			history = append(history, m)
		}
	}
	// 22 条旧消息里取最近 20 条, 再加上当前这条
	require.Len(t, history, 21)
	assert.Equal(t, "turn 1", history[0].Content)
	assert.Equal(t, "Hello there.", history[19].Content)
	assert.Equal(t, "turn 11", history[20].Content)
}

func TestConverse_ModelPrecedence(t *testing.T) {
	ctx := context.Background()

	t.Run("turn override wins", func(t *testing.T) {
		h := newHarness(t)
		p := h.savePersona(t, "u1", "p1", "Ada")
		p.DefaultModel = "persona-model"
		require.NoError(t, h.repos.Personas.Save(ctx, p))

		res, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "hi", PersonaID: "p1", Model: "turn-model"})
		require.NoError(t, err)
		assert.Equal(t, "turn-model", res.Model)
	})

	t.Run("persona default before preferences", func(t *testing.T) {
		h := newHarness(t)
		h.saveSettings(t, "u1", func(s *entity.Settings) {
			s.Preferences["global_default_model"] = "pref-model"
		})
		p := h.savePersona(t, "u1", "p1", "Ada")
		p.DefaultModel = "persona-model"
		require.NoError(t, h.repos.Personas.Save(ctx, p))

		res, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "hi", PersonaID: "p1"})
		require.NoError(t, err)
		assert.Equal(t, "persona-model", res.Model)
	})

	t.Run("chat override sticks to later turns", func(t *testing.T) {
		h := newHarness(t)
		first, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "hi", Model: "sticky"})
		require.NoError(t, err)

		second, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", ChatID: first.ChatID, Text: "again"})
		require.NoError(t, err)
		assert.Equal(t, "sticky", second.Model)
	})

	t.Run("fallback when nothing is installed", func(t *testing.T) {
		h := newHarness(t)
		h.model.models = nil

		res, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "llama3", res.Model)
	})
}

func TestConverse_SamplingOverrideMergesOverPreferences(t *testing.T) {
	h := newHarness(t)
	temp := 0.2

	_, err := h.converse.Execute(context.Background(), usecase.TurnInput{
		UserID:   "u1",
		Text:     "hi",
		Sampling: &valueobject.SamplingOptions{Temperature: &temp},
	})
	require.NoError(t, err)

	require.NotNil(t, h.model.opts.Temperature)
	assert.Equal(t, 0.2, *h.model.opts.Temperature)
	require.NotNil(t, h.model.opts.TopP, "unset fields keep the preference value")
	assert.Equal(t, 1.0, *h.model.opts.TopP)
}

func TestConverse_DirectiveBecomesOffer(t *testing.T) {
	h := newHarness(t)
	h.saveSettings(t, "u1", func(s *entity.Settings) { s.ImageProvider = entity.ProviderOpenAI })
	h.model.reply = "Here is an idea. <generate_image>a lighthouse at dusk, oil painting, warm light, wide shot, calm sea, detailed clouds</generate_image>"

	res, err := h.converse.Execute(context.Background(), usecase.TurnInput{UserID: "u1", Text: "any ideas for my wall?"})
	require.NoError(t, err)

	assert.Equal(t, "Here is an idea.", res.Reply)
	require.NotNil(t, res.Offer)
	assert.Equal(t, "image", res.Offer.Kind)
	assert.Contains(t, res.Offer.Prompt, "lighthouse at dusk")
	assert.Equal(t, usecase.MediaOfferQuestion, res.Offer.Question)
	assert.Zero(t, h.dispatcher.imageCalls, "an offer never generates on its own")

	msgs := h.transcript(t, res.ChatID)
	assert.NotContains(t, msgs[len(msgs)-1].Text, "<generate_image>")
}

func TestConverse_ReasoningHiddenFromReply(t *testing.T) {
	h := newHarness(t)
	h.model.reply = "<think>The user wants a cat name. Keep it short.</think>\n\nHow about Miso?"

	res, err := h.converse.Execute(context.Background(), usecase.TurnInput{UserID: "u1", Text: "name my cat"})
	require.NoError(t, err)

	assert.Equal(t, "How about Miso?", res.Reply)
	msgs := h.transcript(t, res.ChatID)
	assert.Equal(t, "How about Miso?", msgs[len(msgs)-1].Text)
}

func TestConverse_ImageIntentGeneratesAndStores(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.saveSettings(t, "u1", func(s *entity.Settings) { s.ImageProvider = entity.ProviderOpenAI })

	res, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "draw a picture of a red fox"})
	require.NoError(t, err)

	assert.Equal(t, "image", res.Intent)
	assert.False(t, res.Failed)
	assert.Zero(t, h.model.calls, "media path skips the chat model")
	assert.Equal(t, 1, h.dispatcher.imageCalls)
	require.NotEmpty(t, res.ArtifactID)
	assert.Equal(t, usecase.ArtifactURL(res.ArtifactID), res.MediaURL)
	assert.Equal(t, "![Generated image]("+res.MediaURL+")", res.Reply)

	artifact, err := h.repos.Artifacts.Get(ctx, "u1", res.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, entity.ArtifactImage, artifact.Kind)
	assert.Equal(t, res.ChatID, artifact.ChatID)

	assert.Contains(t, h.bus.types(), eventbus.EventTypeMediaGenerated)
	msgs := h.transcript(t, res.ChatID)
	assert.Equal(t, res.Reply, msgs[len(msgs)-1].Text)
}

func TestConverse_ImagePromptCarriesVisualIdentity(t *testing.T) {
	h := newHarness(t)
	h.saveSettings(t, "u1", func(s *entity.Settings) { s.ImageProvider = entity.ProviderOpenAI })
	p := h.savePersona(t, "u1", "p1", "Ada")
	p.PersonalityDetails = "short silver hair"
	require.NoError(t, h.repos.Personas.Save(context.Background(), p))

	_, err := h.converse.Execute(context.Background(), usecase.TurnInput{UserID: "u1", Text: "draw a picture of yourself", PersonaID: "p1"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(h.dispatcher.prompt, service.RewriteForOpenAIImage("draw a picture of yourself")+"\n\n"))
	assert.Contains(t, h.dispatcher.prompt, "Ada")
	assert.Equal(t, 1, strings.Count(h.dispatcher.prompt, "Visual identity notes"))
}

func TestConverse_AcceptedOfferGetsVisualIdentityOnce(t *testing.T) {
	detailed := "a lighthouse at dusk, oil painting, warm light, wide shot, calm sea, detailed clouds"
	tests := []struct {
		name      string
		directive string
		wantOffer string
	}{
		{name: "detailed prompt is left alone", directive: detailed, wantOffer: detailed},
		{name: "short prompt is rewritten once", directive: "a fox", wantOffer: service.RewriteForOpenAIImage("a fox")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.saveSettings(t, "u1", func(s *entity.Settings) { s.ImageProvider = entity.ProviderOpenAI })
			p := h.savePersona(t, "u1", "p1", "Ada")
			p.PersonalityDetails = "short silver hair"
			require.NoError(t, h.repos.Personas.Save(ctx, p))
			h.model.reply = "Sure. <generate_image>" + tt.directive + "</generate_image>"

			res, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "ideas for a poster?", PersonaID: "p1"})
			require.NoError(t, err)
			require.NotNil(t, res.Offer)
			assert.Equal(t, tt.wantOffer, res.Offer.Prompt)
			assert.NotContains(t, res.Offer.Prompt, "Visual identity notes")

			media := usecase.NewGenerateMediaUseCase(h.converse)
			out, err := media.Image(ctx, usecase.GenerateMediaInput{UserID: "u1", ChatID: res.ChatID, Prompt: res.Offer.Prompt, FromOffer: true})
			require.NoError(t, err)
			require.True(t, out.OK)

			assert.True(t, strings.HasPrefix(h.dispatcher.prompt, tt.wantOffer+"\n\n"), h.dispatcher.prompt)
			assert.Equal(t, 1, strings.Count(h.dispatcher.prompt, "Visual identity notes"))
			assert.Contains(t, h.dispatcher.prompt, "Ada")
			assert.Equal(t, 1, strings.Count(h.dispatcher.prompt, tt.directive), "the prompt is not echoed back as a cue")
			assert.Equal(t, 1, strings.Count(h.dispatcher.prompt, "ideas for a poster?"))

			msgs := h.transcript(t, res.ChatID)
			assert.Equal(t, res.Offer.Prompt, msgs[len(msgs)-2].Text, "the stored user message is the bare offer prompt")
		})
	}
}

func TestConverse_MediaFailureIsChatVisible(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantReply string
		wantKind  string
	}{
		{
			name:      "configuration",
			err:       domainErrors.NewConfigurationError("Image generation is disabled in settings"),
			wantReply: "Image generation is disabled in settings",
			wantKind:  "configuration",
		},
		{
			name:      "rate limited",
			err:       service.NewHTTPError("openai", "image", 429, []byte(`{"error":{"message":"slow down"}}`)),
			wantReply: "OpenAI is rate limiting image requests right now. Wait a minute and try again.",
			wantKind:  "http",
		},
		{
			name:      "safety",
			err:       service.NewHTTPError("openai", "image", 400, []byte(`{"error":{"message":"Rejected by the safety system"}}`)),
			wantReply: "Your request was flagged by safety filters. Try rephrasing it with different wording.",
			wantKind:  "http",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.saveSettings(t, "u1", func(s *entity.Settings) { s.ImageProvider = entity.ProviderOpenAI })
			h.dispatcher.err = tt.err
			h.dispatcher.media = nil

			res, err := h.converse.Execute(context.Background(), usecase.TurnInput{UserID: "u1", Text: "generate an image of a boat"})
			require.NoError(t, err)

			assert.True(t, res.Failed)
			assert.Equal(t, tt.wantReply, res.Reply)
			assert.Empty(t, res.MediaURL)

			payload, ok := h.bus.payloadOf(eventbus.EventTypeMediaFailed).(eventbus.MediaFailedPayload)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, payload.ErrorKind)
		})
	}
}

func TestConverse_InvalidImageSettingsReported(t *testing.T) {
	h := newHarness(t)
	h.saveSettings(t, "u1", func(s *entity.Settings) {
		s.ImageProvider = entity.ProviderLocal
		s.Preferences["image_local_base_url"] = "http://127.0.0.1:7860"
		s.Preferences["image_local_additional_parameters"] = "{not json"
	})

	res, err := h.converse.Execute(context.Background(), usecase.TurnInput{UserID: "u1", Text: "generate an image of a boat"})
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.Contains(t, res.Reply, "additional parameters")
	assert.Zero(t, h.dispatcher.imageCalls)
}

func TestConverse_VideoIntentPublishesTransitions(t *testing.T) {
	h := newHarness(t)
	h.saveSettings(t, "u1", func(s *entity.Settings) { s.VideoProvider = entity.ProviderOpenAI })
	h.dispatcher.media = &service.GeneratedMedia{Data: []byte("mp4"), Ext: ".mp4", ContentType: "video/mp4", Provider: "openai"}

	res, err := h.converse.Execute(context.Background(), usecase.TurnInput{UserID: "u1", Text: "make a video of waves crashing"})
	require.NoError(t, err)

	assert.Equal(t, "video", res.Intent)
	assert.Equal(t, 1, h.dispatcher.videoCalls)
	assert.Equal(t, "[Watch the video]("+res.MediaURL+")", res.Reply)

	payload, ok := h.bus.payloadOf(eventbus.EventTypeVideoJobState).(eventbus.VideoJobStatePayload)
	require.True(t, ok)
	assert.Equal(t, "vid_1", payload.JobID)
	assert.Equal(t, "completed", payload.To)
}

func TestConverse_MemoryModes(t *testing.T) {
	ctx := context.Background()

	t.Run("auto writes chat memory", func(t *testing.T) {
		h := newHarness(t)
		res, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "my favourite colour is green"})
		require.NoError(t, err)

		chatRows, err := h.repos.Memories.Find(ctx, repository.MemoryQuery{UserID: "u1", Tier: entity.TierChat, RefID: res.ChatID})
		require.NoError(t, err)
		assert.Len(t, chatRows, 1)
		facts, err := h.repos.Memories.Find(ctx, repository.MemoryQuery{UserID: "u1", Tier: entity.TierGlobal})
		require.NoError(t, err)
		assert.Len(t, facts, 1)
		assert.Contains(t, h.bus.types(), eventbus.EventTypeMemorySaved)
	})

	t.Run("off neither reads nor writes", func(t *testing.T) {
		h := newHarness(t)
		m, err := entity.NewMemory("m1", "u1", entity.TierGlobal, "", "secret fact", testNow)
		require.NoError(t, err)
		require.NoError(t, h.repos.Memories.Create(ctx, m))

		_, err = h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "my name is Bo", MemoryMode: "off"})
		require.NoError(t, err)

		assert.NotContains(t, joinedSystem(h.model.messages), "secret fact")
		all, err := h.repos.Memories.Find(ctx, repository.MemoryQuery{UserID: "u1"})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("on reads but does not write", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "my name is Bo", MemoryMode: "on"})
		require.NoError(t, err)

		all, err := h.repos.Memories.Find(ctx, repository.MemoryQuery{UserID: "u1"})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("unknown mode rejected before any call", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "hi", MemoryMode: "sometimes"})
		require.Error(t, err)
		assert.True(t, domainErrors.IsInvalidInput(err))
		assert.Zero(t, h.model.calls)
	})

	t.Run("turn mode sticks to the chat", func(t *testing.T) {
		h := newHarness(t)
		res, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "hi", MemoryMode: "on"})
		require.NoError(t, err)
		chat, err := h.repos.Chats.Get(ctx, "u1", res.ChatID)
		require.NoError(t, err)
		assert.Equal(t, entity.MemoryModeOn, chat.MemoryMode)
	})
}

func TestConverse_InputErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "   "})
	assert.True(t, domainErrors.IsInvalidInput(err))

	_, err = h.converse.Execute(ctx, usecase.TurnInput{Text: "hi"})
	assert.True(t, domainErrors.IsUnauthorized(err))

	_, err = h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", ChatID: "missing", Text: "hi"})
	assert.True(t, domainErrors.IsNotFound(err))

	_, err = h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", Text: "hi", PersonaID: "missing"})
	assert.True(t, domainErrors.IsNotFound(err))
}

func TestConverse_OtherUsersChatIsNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "alice", Text: "hi"})
	require.NoError(t, err)

	_, err = h.converse.Execute(ctx, usecase.TurnInput{UserID: "mallory", ChatID: res.ChatID, Text: "hi"})
	assert.True(t, domainErrors.IsNotFound(err))
}

func TestConverse_StalePersonaIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	chat, err := entity.NewChat("c1", "u1", "old", testNow)
	require.NoError(t, err)
	chat.PersonaID = "deleted"
	require.NoError(t, h.repos.Chats.Save(ctx, chat))

	res, err := h.converse.Execute(ctx, usecase.TurnInput{UserID: "u1", ChatID: "c1", Text: "hi"})
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.NotContains(t, joinedSystem(h.model.messages), "You are")
}
