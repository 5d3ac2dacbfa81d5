package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/application/usecase"
	"github.com/niceassistant/assistant/internal/domain/entity"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
	"github.com/niceassistant/assistant/pkg/safego"
)

const (
	callbackGenerate = "gen:"
	callbackDismiss  = "skip:"
	maxPendingOffers = 256
)

// Config Telegram 适配器配置
type Config struct {
	BotToken       string
	AllowedUserIDs []int64
	UserID         string // 机器人代表的助手用户
	Debug          bool
}

// Bot is the part of the Telegram client the adapter uses.
type Bot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Conversation 处理一轮对话
type Conversation interface {
	Execute(ctx context.Context, in usecase.TurnInput) (*usecase.TurnResult, error)
}

// ImageGenerator 根据确认的建议生成图片
type ImageGenerator interface {
	Image(ctx context.Context, in usecase.GenerateMediaInput) (*usecase.GenerateMediaResult, error)
}

// Transcriber 语音转文字
type Transcriber interface {
	Transcribe(ctx context.Context, in usecase.TranscribeInput) (*usecase.TranscribeResult, error)
}

// ArtifactOpener 读取生成产物
type ArtifactOpener interface {
	OpenArtifact(ctx context.Context, userID, artifactID string) (*entity.Artifact, []byte, error)
}

// Services 适配器依赖的用例
type Services struct {
	Conversation Conversation
	Images       ImageGenerator
	Transcriber  Transcriber
	Artifacts    ArtifactOpener
}

type pendingOffer struct {
	chatID string
	prompt string
}

// Adapter Telegram 适配器. 所有允许的 Telegram 用户都映射到同一个助手用户,
// 每个 Telegram 会话对应一个助手会话
type Adapter struct {
	bot        Bot
	config     Config
	svc        Services
	downloader *downloader
	logger     *zap.Logger

	mu     sync.Mutex
	chats  map[int64]string
	offers map[string]pendingOffer
	order  []string
}

// NewAdapter 创建 Telegram 适配器
func NewAdapter(config Config, svc Services, logger *zap.Logger) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(config.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	bot.Debug = config.Debug

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))
	return NewAdapterWithBot(bot, config, svc, logger), nil
}

// NewAdapterWithBot creates an adapter over an existing client.
func NewAdapterWithBot(bot Bot, config Config, svc Services, logger *zap.Logger) *Adapter {
	logger = logger.With(zap.String("component", "telegram"))
	if len(config.AllowedUserIDs) == 0 {
		logger.Warn("Telegram allowlist is empty, every Telegram user can talk to the bot")
	}
	return &Adapter{
		bot:        bot,
		config:     config,
		svc:        svc,
		downloader: newDownloader(bot),
		logger:     logger,
		chats:      make(map[int64]string),
		offers:     make(map[string]pendingOffer),
	}
}

// Run 轮询更新直到 ctx 取消. 每个更新在独立 goroutine 中处理
func (a *Adapter) Run(ctx context.Context) error {
	if err := a.setupBotCommands(); err != nil {
		a.logger.Warn("Failed to setup bot commands", zap.Error(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := a.bot.GetUpdatesChan(u)

	a.logger.Info("Starting Telegram polling")
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			a.logger.Info("Telegram adapter stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := safego.Run(a.logger, "telegram-update", func() error {
					a.HandleUpdate(ctx, update)
					return nil
				})
				if err != nil {
					a.logger.Error("Telegram update crashed", zap.Int("update_id", update.UpdateID), zap.Error(err))
				}
			}()
		}
	}
}

func (a *Adapter) setupBotCommands() error {
	commands := []tgbotapi.BotCommand{
		{Command: "new", Description: "Start a new chat"},
		{Command: "help", Description: "How to use this bot"},
	}
	if _, err := a.bot.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	return nil
}

// HandleUpdate 处理一条更新
func (a *Adapter) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		a.handleCallback(ctx, update.CallbackQuery)
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if !a.isAllowedUser(msg.From.ID) {
		a.logger.Warn("Unauthorized access",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Int64("user_id", msg.From.ID),
			zap.String("username", msg.From.UserName),
		)
		return
	}

	if msg.IsCommand() {
		a.handleCommand(msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if voice := extractVoice(msg); voice != nil {
		transcript, err := a.transcribe(ctx, msg.Chat.ID, voice)
		if err != nil {
			a.sendError(msg.Chat.ID, err)
			return
		}
		text = strings.TrimSpace(transcript + "\n" + text)
	}
	if text == "" {
		return
	}

	a.sendTyping(msg.Chat.ID)
	result, err := a.svc.Conversation.Execute(ctx, usecase.TurnInput{
		UserID: a.config.UserID,
		ChatID: a.chatFor(msg.Chat.ID),
		Text:   text,
	})
	if err != nil {
		a.logger.Error("Turn failed", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		a.sendError(msg.Chat.ID, err)
		return
	}
	a.rememberChat(msg.Chat.ID, result.ChatID)
	a.deliver(ctx, msg.Chat.ID, msg.MessageID, result.Reply, result.ArtifactID)

	if result.Offer != nil {
		a.sendOffer(msg.Chat.ID, result.ChatID, result.Offer)
	}
}

func (a *Adapter) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "new":
		a.mu.Lock()
		delete(a.chats, msg.Chat.ID)
		a.mu.Unlock()
		a.sendText(msg.Chat.ID, 0, "Started a new chat.")
	case "start", "help":
		a.sendText(msg.Chat.ID, 0, "Send a message to chat. Ask me to *generate an image* or *make a video* to create media. Voice notes work too. /new starts over.")
	default:
		a.sendText(msg.Chat.ID, 0, "Unknown command. Try /help.")
	}
}

func (a *Adapter) transcribe(ctx context.Context, chatID int64, voice *voiceNote) (string, error) {
	audio, err := a.downloader.download(ctx, voice.FileID)
	if err != nil {
		return "", err
	}
	res, err := a.svc.Transcriber.Transcribe(ctx, usecase.TranscribeInput{
		UserID:      a.config.UserID,
		ChatID:      a.chatFor(chatID),
		Audio:       audio,
		Filename:    voice.Filename,
		ContentType: voice.MimeType,
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// deliver sends the reply, as a photo or video when the turn produced one.
func (a *Adapter) deliver(ctx context.Context, chatID int64, replyTo int, reply, artifactID string) {
	if artifactID != "" {
		err := a.sendArtifact(ctx, chatID, replyTo, artifactID)
		if err == nil {
			return
		}
		a.logger.Warn("Failed to send artifact, falling back to text",
			zap.String("artifact_id", artifactID),
			zap.Error(err),
		)
	}
	a.sendText(chatID, replyTo, reply)
}

func (a *Adapter) sendArtifact(ctx context.Context, chatID int64, replyTo int, artifactID string) error {
	artifact, data, err := a.svc.Artifacts.OpenArtifact(ctx, a.config.UserID, artifactID)
	if err != nil {
		return err
	}
	file := tgbotapi.FileBytes{Name: artifact.ID + artifact.Format, Bytes: data}

	var out tgbotapi.Chattable
	switch artifact.Kind {
	case entity.ArtifactImage:
		photo := tgbotapi.NewPhoto(chatID, file)
		photo.ReplyToMessageID = replyTo
		out = photo
	case entity.ArtifactVideo:
		video := tgbotapi.NewVideo(chatID, file)
		video.ReplyToMessageID = replyTo
		out = video
	default:
		doc := tgbotapi.NewDocument(chatID, file)
		doc.ReplyToMessageID = replyTo
		out = doc
	}
	_, err = a.bot.Send(out)
	return err
}

func (a *Adapter) sendOffer(chatID int64, assistantChatID string, offer *usecase.MediaOffer) {
	id := a.storeOffer(pendingOffer{chatID: assistantChatID, prompt: offer.Prompt})
	msg := tgbotapi.NewMessage(chatID, offer.Question)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Generate", callbackGenerate+id),
			tgbotapi.NewInlineKeyboardButtonData("No thanks", callbackDismiss+id),
		),
	)
	if _, err := a.bot.Send(msg); err != nil {
		a.logger.Warn("Failed to send media offer", zap.Error(err))
	}
}

func (a *Adapter) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || !a.isAllowedUser(cb.From.ID) || cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	if _, err := a.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		a.logger.Debug("Failed to answer callback", zap.Error(err))
	}
	// 移除按钮, 防止重复生成
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, cb.Message.MessageID, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := a.bot.Request(edit); err != nil {
		a.logger.Debug("Failed to clear offer buttons", zap.Error(err))
	}

	switch {
	case strings.HasPrefix(cb.Data, callbackDismiss):
		a.takeOffer(strings.TrimPrefix(cb.Data, callbackDismiss))
	case strings.HasPrefix(cb.Data, callbackGenerate):
		offer, ok := a.takeOffer(strings.TrimPrefix(cb.Data, callbackGenerate))
		if !ok {
			a.sendText(chatID, 0, "That suggestion has expired. Ask again to generate it.")
			return
		}
		a.sendTyping(chatID)
		res, err := a.svc.Images.Image(ctx, usecase.GenerateMediaInput{
			UserID:    a.config.UserID,
			ChatID:    offer.chatID,
			Prompt:    offer.prompt,
			FromOffer: true,
		})
		if err != nil {
			a.sendError(chatID, err)
			return
		}
		artifactID := ""
		if res.OK {
			artifactID = artifactIDFromURL(res.MediaURL)
		}
		a.deliver(ctx, chatID, 0, res.ReplyText, artifactID)
	}
}

func artifactIDFromURL(url string) string {
	prefix := usecase.ArtifactURL("")
	if !strings.HasPrefix(url, prefix) {
		return ""
	}
	return strings.TrimPrefix(url, prefix)
}

func (a *Adapter) storeOffer(o pendingOffer) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	a.mu.Lock()
	defer a.mu.Unlock()
	a.offers[id] = o
	a.order = append(a.order, id)
	for len(a.order) > maxPendingOffers {
		delete(a.offers, a.order[0])
		a.order = a.order[1:]
	}
	return id
}

func (a *Adapter) takeOffer(id string) (pendingOffer, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.offers[id]
	delete(a.offers, id)
	return o, ok
}

func (a *Adapter) chatFor(tgChatID int64) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chats[tgChatID]
}

func (a *Adapter) rememberChat(tgChatID int64, chatID string) {
	if chatID == "" {
		return
	}
	a.mu.Lock()
	a.chats[tgChatID] = chatID
	a.mu.Unlock()
}

// sendText 发送 Markdown 回复, HTML 解析失败时退回纯文本
func (a *Adapter) sendText(chatID int64, replyTo int, markdown string) {
	for i, chunk := range ChunkMessage(markdown) {
		msg := tgbotapi.NewMessage(chatID, MarkdownToTelegramHTML(chunk))
		msg.ParseMode = tgbotapi.ModeHTML
		if i == 0 && replyTo > 0 {
			msg.ReplyToMessageID = replyTo
		}
		_, err := a.bot.Send(msg)
		if err != nil && strings.Contains(err.Error(), "can't parse entities") {
			a.logger.Warn("HTML parse failed, retrying as plain text", zap.Int64("chat_id", chatID), zap.Error(err))
			msg.Text = PlainText(chunk)
			msg.ParseMode = ""
			_, err = a.bot.Send(msg)
		}
		if err != nil {
			a.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
			return
		}
	}
}

func (a *Adapter) sendTyping(chatID int64) {
	if _, err := a.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		a.logger.Debug("Failed to send typing action", zap.Error(err))
	}
}

// sendError 只发送可展示的错误信息, 细节留在日志里
func (a *Adapter) sendError(chatID int64, err error) {
	var text string
	switch domainErrors.CodeOf(err) {
	case domainErrors.CodeInvalidInput, domainErrors.CodeConfiguration, domainErrors.CodeServiceUnavail, domainErrors.CodeNotFound:
		text = domainErrors.MessageOf(err)
	default:
		text = "Something went wrong. Please try again."
	}
	if _, sendErr := a.bot.Send(tgbotapi.NewMessage(chatID, text)); sendErr != nil {
		a.logger.Error("Failed to send error message", zap.Int64("chat_id", chatID), zap.Error(sendErr))
	}
}

// isAllowedUser 空白名单允许所有人
func (a *Adapter) isAllowedUser(userID int64) bool {
	if len(a.config.AllowedUserIDs) == 0 {
		return true
	}
	for _, id := range a.config.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
