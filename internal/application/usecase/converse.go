package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/memory"
	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/internal/domain/service"
	"github.com/niceassistant/assistant/internal/domain/valueobject"
	"github.com/niceassistant/assistant/internal/infrastructure/config"
	"github.com/niceassistant/assistant/internal/infrastructure/eventbus"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// MediaOfferQuestion frames an extracted image directive as a yes/no offer.
const MediaOfferQuestion = "Would you like me to generate this image?"

// TurnInput is one user turn. Empty overrides fall back to the chat, the
// persona and the user's preferences.
type TurnInput struct {
	UserID      string
	ChatID      string
	Text        string
	Model       string
	PersonaID   string
	WorkspaceID string
	MemoryMode  string
	Sampling    *valueobject.SamplingOptions
}

// MediaOffer is an image the model proposed. It is never generated without a
// follow-up request.
type MediaOffer struct {
	Kind     string `json:"kind"`
	Prompt   string `json:"prompt"`
	Question string `json:"question"`
}

// TurnResult is what the caller shows for a turn.
type TurnResult struct {
	ChatID     string      `json:"chatId"`
	Reply      string      `json:"replyText"`
	Intent     string      `json:"intent"`
	Model      string      `json:"model,omitempty"`
	MediaURL   string      `json:"mediaUrl,omitempty"`
	ArtifactID string      `json:"artifactId,omitempty"`
	Offer      *MediaOffer `json:"mediaOffer,omitempty"`
	Failed     bool        `json:"failed"`
}

// ConverseDeps wires the orchestrator.
type ConverseDeps struct {
	Chats     repository.ChatRepository
	Messages  repository.MessageRepository
	Memories  repository.MemoryRepository
	Personas  repository.PersonaRepository
	Settings  repository.SettingsRepository
	ChatModel service.ChatModel
	Parser    service.ReplyDirectiveParser
	Media     MediaDeps
	Config    config.ConversationConfig
	Now       func() time.Time
}

// ConverseUseCase is the conversation orchestrator. Each turn runs
// received → classified → media or chat path → persisted → responded.
// Turns on the same chat are not serialized; chat metadata is last write wins.
type ConverseUseCase struct {
	chats     repository.ChatRepository
	messages  repository.MessageRepository
	personas  repository.PersonaRepository
	settings  repository.SettingsRepository
	chatModel service.ChatModel
	parser    service.ReplyDirectiveParser
	assembler *memory.Assembler
	writer    *memory.Writer
	media     *mediaRunner
	bus       eventbus.Bus
	defaults  valueobject.ProviderDefaults
	cfg       config.ConversationConfig
	now       func() time.Time
	logger    *zap.Logger
}

// NewConverseUseCase creates the orchestrator.
func NewConverseUseCase(deps ConverseDeps, logger *zap.Logger) *ConverseUseCase {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	parser := deps.Parser
	if parser == nil {
		parser = service.TagDirectiveParser{}
	}
	cfg := deps.Config
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.TitleMaxLen <= 0 {
		cfg.TitleMaxLen = 40
	}
	if cfg.MemoryWriteMaxLen <= 0 {
		cfg.MemoryWriteMaxLen = memory.DefaultFactMaxLen
	}
	if cfg.FallbackModel == "" {
		cfg.FallbackModel = "llama3"
	}
	logger = logger.With(zap.String("component", "converse"))

	return &ConverseUseCase{
		chats:     deps.Chats,
		messages:  deps.Messages,
		personas:  deps.Personas,
		settings:  deps.Settings,
		chatModel: deps.ChatModel,
		parser:    parser,
		assembler: memory.NewAssembler(deps.Memories, deps.Messages, cfg.ChatMemoryWindow),
		writer:    memory.NewWriter(deps.Memories, cfg.MemoryWriteMaxLen, now),
		media:     newMediaRunner(deps.Media, logger, now),
		bus:       deps.Media.Bus,
		defaults:  deps.Media.Defaults,
		cfg:       cfg,
		now:       now,
		logger:    logger,
	}
}

// turn is the resolved state of one turn.
type turn struct {
	in        TurnInput
	chat      *entity.Chat
	persona   *entity.Persona
	workspace string
	mode      entity.MemoryMode
	settings  *entity.Settings
	prefs     valueobject.Preferences
	intent    service.Intent
	fromOffer bool
	started   time.Time
}

// Execute handles one turn. Provider and model failures become reply text;
// only invalid input, unknown ids and persistence failures are returned.
func (uc *ConverseUseCase) Execute(ctx context.Context, in TurnInput) (*TurnResult, error) {
	t, err := uc.begin(ctx, in)
	if err != nil {
		return nil, err
	}
	t.intent = service.ClassifyIntent(in.Text)
	return uc.complete(ctx, t)
}

// executeMedia runs a turn whose intent was decided by the caller. fromOffer
// marks a prompt taken from an earlier media offer.
func (uc *ConverseUseCase) executeMedia(ctx context.Context, in TurnInput, intent service.Intent, fromOffer bool) (*TurnResult, error) {
	t, err := uc.begin(ctx, in)
	if err != nil {
		return nil, err
	}
	t.intent = intent
	t.fromOffer = fromOffer
	return uc.complete(ctx, t)
}

// begin resolves the turn context, creates the chat when needed and stores
// the user message.
func (uc *ConverseUseCase) begin(ctx context.Context, in TurnInput) (*turn, error) {
	if in.UserID == "" {
		return nil, domainErrors.NewUnauthorizedError("user required")
	}
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		return nil, domainErrors.NewInvalidInputError("text is required")
	}

	t := &turn{in: in, started: uc.now()}

	var err error
	t.settings, err = uc.settings.Get(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	t.prefs = valueobject.ParsePreferences(t.settings.Preferences)

	if in.ChatID != "" {
		t.chat, err = uc.chats.Get(ctx, in.UserID, in.ChatID)
		if err != nil {
			return nil, err
		}
	}

	if t.persona, err = uc.resolvePersona(ctx, in, t.chat); err != nil {
		return nil, err
	}
	t.workspace = in.WorkspaceID
	if t.workspace == "" && t.chat != nil {
		t.workspace = t.chat.WorkspaceID
	}
	if t.mode, err = resolveMemoryMode(in.MemoryMode, t.chat, t.prefs); err != nil {
		return nil, err
	}

	if t.chat == nil {
		if t.chat, err = uc.createChat(ctx, t); err != nil {
			return nil, err
		}
	}

	if err := uc.appendMessage(ctx, t.chat.ID, entity.RoleUser, in.Text); err != nil {
		return nil, err
	}
	return t, nil
}

func (uc *ConverseUseCase) resolvePersona(ctx context.Context, in TurnInput, chat *entity.Chat) (*entity.Persona, error) {
	if in.PersonaID != "" {
		return uc.personas.Get(ctx, in.UserID, in.PersonaID)
	}
	if chat == nil || chat.PersonaID == "" {
		return nil, nil
	}
	p, err := uc.personas.Get(ctx, in.UserID, chat.PersonaID)
	if domainErrors.IsNotFound(err) {
		uc.logger.Warn("Chat persona no longer exists",
			zap.String("chat_id", chat.ID),
			zap.String("persona_id", chat.PersonaID),
		)
		return nil, nil
	}
	return p, err
}

// resolveMemoryMode: the turn's value, the chat's, the user's default, auto.
func resolveMemoryMode(requested string, chat *entity.Chat, prefs valueobject.Preferences) (entity.MemoryMode, error) {
	if requested != "" {
		mode, ok := entity.ParseMemoryMode(requested)
		if !ok {
			return "", domainErrors.NewInvalidInputError(fmt.Sprintf("unknown memory mode %q", requested))
		}
		return mode, nil
	}
	if chat != nil && chat.MemoryMode != "" {
		return chat.MemoryMode, nil
	}
	if mode, ok := entity.ParseMemoryMode(prefs.DefaultMemoryMode); ok {
		return mode, nil
	}
	return entity.MemoryModeAuto, nil
}

// resolveModel: the turn's model, the chat's, the persona's, the user's
// default, the first installed model, the configured fallback.
func (uc *ConverseUseCase) resolveModel(ctx context.Context, t *turn) string {
	candidates := []string{t.in.Model}
	if t.chat != nil {
		candidates = append(candidates, t.chat.ModelOverride)
	}
	if t.persona != nil {
		candidates = append(candidates, t.persona.DefaultModel)
	}
	candidates = append(candidates, t.prefs.GlobalDefaultModel)
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}

	models, err := uc.chatModel.ListModels(ctx)
	if err != nil {
		uc.logger.Warn("Failed to list chat models, using fallback", zap.Error(err))
	}
	if len(models) > 0 {
		return models[0]
	}
	return uc.cfg.FallbackModel
}

func (uc *ConverseUseCase) createChat(ctx context.Context, t *turn) (*entity.Chat, error) {
	chat, err := entity.NewChat(uuid.New().String(), t.in.UserID, entity.TitleFromText(t.in.Text, uc.cfg.TitleMaxLen), uc.now().UTC())
	if err != nil {
		return nil, domainErrors.NewInvalidInputError(err.Error())
	}
	chat.WorkspaceID = t.workspace
	if t.persona != nil {
		chat.PersonaID = t.persona.ID
	}
	chat.MemoryMode = t.mode
	if err := uc.chats.Save(ctx, chat); err != nil {
		return nil, err
	}
	uc.logger.Info("Chat created", zap.String("chat_id", chat.ID), zap.String("user_id", chat.UserID))
	return chat, nil
}

func (uc *ConverseUseCase) appendMessage(ctx context.Context, chatID string, role entity.Role, text string) error {
	msg, err := entity.NewMessage(uuid.New().String(), chatID, role, text, uc.now().UTC())
	if err != nil {
		return domainErrors.NewInvalidInputError(err.Error())
	}
	return uc.messages.Append(ctx, msg)
}

// complete runs the classified path, stores the reply and updates the chat.
func (uc *ConverseUseCase) complete(ctx context.Context, t *turn) (*TurnResult, error) {
	result := &TurnResult{ChatID: t.chat.ID, Intent: t.intent.String()}

	switch t.intent {
	case service.IntentImage, service.IntentVideo:
		uc.mediaPath(ctx, t, result)
	default:
		uc.chatPath(ctx, t, result)
	}

	if err := uc.appendMessage(ctx, t.chat.ID, entity.RoleAssistant, result.Reply); err != nil {
		return nil, err
	}

	drift := entity.ChatDrift{
		WorkspaceID:   t.in.WorkspaceID,
		PersonaID:     t.in.PersonaID,
		ModelOverride: t.in.Model,
	}
	if t.in.MemoryMode != "" {
		drift.MemoryMode = t.mode
	}
	t.chat.ApplyTurn(drift, uc.now().UTC())
	if err := uc.chats.Save(ctx, t.chat); err != nil {
		return nil, err
	}

	duration := uc.now().Sub(t.started)
	uc.publish(ctx, t.in.UserID, eventbus.EventTypeTurnCompleted, eventbus.TurnCompletedPayload{
		ChatID:   t.chat.ID,
		Model:    result.Model,
		Path:     result.Intent,
		Duration: duration,
		Failed:   result.Failed,
	})
	uc.logger.Info("Turn completed",
		zap.String("chat_id", t.chat.ID),
		zap.String("intent", result.Intent),
		zap.Bool("failed", result.Failed),
		zap.Duration("duration", duration),
	)
	return result, nil
}

func mediaKindFor(intent service.Intent) service.MediaKind {
	if intent == service.IntentVideo {
		return service.MediaVideo
	}
	return service.MediaImage
}

// visualIdentity returns the persona's appearance notes for a media prompt.
func (uc *ConverseUseCase) visualIdentity(ctx context.Context, t *turn) string {
	visual, err := uc.assembler.VisualIdentityContext(ctx, memory.VisualRequest{
		UserID:      t.in.UserID,
		ChatID:      t.chat.ID,
		Persona:     t.persona,
		WorkspaceID: t.workspace,
		Prompt:      t.in.Text,
	})
	if err != nil {
		uc.logger.Warn("Visual identity context unavailable", zap.Error(err))
		return ""
	}
	return visual
}

func (uc *ConverseUseCase) mediaPath(ctx context.Context, t *turn, result *TurnResult) {
	outcome := uc.media.run(ctx, mediaJob{
		UserID:    t.in.UserID,
		ChatID:    t.chat.ID,
		Persona:   t.persona,
		Kind:      mediaKindFor(t.intent),
		Prompt:    t.in.Text,
		Visual:    uc.visualIdentity(ctx, t),
		FromOffer: t.fromOffer,
		Settings:  t.settings,
		Prefs:     t.prefs,
	})
	result.Reply = outcome.ReplyText
	result.Failed = outcome.Failed
	result.MediaURL = outcome.URL
	if outcome.Artifact != nil {
		result.ArtifactID = outcome.Artifact.ID
	}
}

// imageProviderFor returns the user's image backend for prompt instructions
// and directive refinement. Invalid settings count as disabled here; the
// error surfaces when an image is actually requested.
func (uc *ConverseUseCase) imageProviderFor(t *turn) valueobject.ImageProvider {
	p, err := valueobject.SelectImage(providerSettings(t.settings), t.prefs, uc.defaults)
	if err != nil {
		return valueobject.DisabledImage{Requested: t.settings.ImageProvider}
	}
	return p
}

func (uc *ConverseUseCase) chatPath(ctx context.Context, t *turn, result *TurnResult) {
	imageProvider := uc.imageProviderFor(t)
	instruction := ""
	if _, disabled := imageProvider.(valueobject.DisabledImage); !disabled && t.prefs.ImageModelDirectives {
		instruction = service.ModelImageInstruction(imageProvider)
	}

	fragments, err := uc.assembler.Assemble(ctx, memory.ContextRequest{
		UserID:           t.in.UserID,
		ChatID:           t.chat.ID,
		Persona:          t.persona,
		WorkspaceID:      t.workspace,
		Mode:             t.mode,
		ImageInstruction: instruction,
	})
	if err != nil {
		uc.logger.Warn("Memory context unavailable", zap.Error(err))
	}

	// The current message is already stored, so HistoryLimit prior messages
	// plus this one.
	history, err := uc.messages.Recent(ctx, t.chat.ID, uc.cfg.HistoryLimit+1)
	if err != nil {
		uc.logger.Warn("Failed to load chat history", zap.Error(err))
		history = nil
	}

	messages := make([]service.ChatMessage, 0, len(history)+1)
	if len(fragments) > 0 {
		messages = append(messages, service.ChatMessage{Role: "system", Content: strings.Join(fragments, "\n")})
	}
	for i := len(history) - 1; i >= 0; i-- {
		messages = append(messages, service.ChatMessage{Role: string(history[i].Role), Content: history[i].Text})
	}

	model := uc.resolveModel(ctx, t)
	result.Model = model
	sampling := t.prefs.Sampling.Merge(t.in.Sampling)

	if reply, err := uc.chatModel.Chat(ctx, model, messages, sampling); err != nil {
		uc.logger.Warn("Chat model call failed", zap.String("model", model), zap.Error(err))
		result.Reply = fmt.Sprintf("Model call failed: %v", err)
		result.Failed = true
	} else {
		uc.applyReply(imageProvider, reply, result)
	}

	// 模型失败也照常写记忆
	uc.recordMemories(ctx, t)
}

// applyReply hides reasoning and turns an image directive into an offer. The
// offer prompt carries no visual identity notes.
func (uc *ConverseUseCase) applyReply(imageProvider valueobject.ImageProvider, reply string, result *TurnResult) {
	directive := uc.parser.ParseImageDirective(service.StripReasoning(reply))
	result.Reply = directive.CleanReply
	if directive.Prompt == "" {
		return
	}
	result.Offer = &MediaOffer{
		Kind:     string(service.MediaImage),
		Prompt:   service.RefineDirectivePrompt(imageProvider, directive.Prompt),
		Question: MediaOfferQuestion,
	}
	if result.Reply == "" {
		result.Reply = MediaOfferQuestion
	}
}

func (uc *ConverseUseCase) recordMemories(ctx context.Context, t *turn) {
	written, err := uc.writer.RecordTurn(ctx, memory.TurnRecord{
		UserID:        t.in.UserID,
		ChatID:        t.chat.ID,
		Persona:       t.persona,
		Mode:          t.mode,
		Text:          t.in.Text,
		AutoSaveFacts: t.prefs.MemoryAutoSaveUserFacts,
	})
	if err != nil {
		uc.logger.Warn("Failed to record memories", zap.Error(err))
	}
	for _, m := range written {
		uc.publish(ctx, t.in.UserID, eventbus.EventTypeMemorySaved, eventbus.MemorySavedPayload{
			MemoryID: m.ID,
			Tier:     string(m.Tier),
		})
	}
}

func (uc *ConverseUseCase) publish(ctx context.Context, userID, eventType string, payload any) {
	if uc.bus == nil {
		return
	}
	uc.bus.Publish(ctx, eventbus.NewEvent(eventType, userID, payload))
}
