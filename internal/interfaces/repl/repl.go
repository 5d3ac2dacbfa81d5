// Package repl is an interactive terminal chat against the orchestrator.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/application/usecase"
	"github.com/niceassistant/assistant/internal/domain/entity"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// Conversation 处理一轮对话
type Conversation interface {
	Execute(ctx context.Context, in usecase.TurnInput) (*usecase.TurnResult, error)
}

// Config REPL 配置
type Config struct {
	UserID    string
	Model     string
	PersonaID string
	Width     int
}

// REPL interactive command-line session
type REPL struct {
	conv     Conversation
	logger   *zap.Logger
	renderer *Renderer
	in       io.Reader
	out      io.Writer

	userID     string
	chatID     string
	model      string
	personaID  string
	memoryMode string
}

// New creates a REPL reading from in and writing to out.
func New(conv Conversation, cfg Config, in io.Reader, out io.Writer, logger *zap.Logger) *REPL {
	userID := cfg.UserID
	if userID == "" {
		userID = "local"
	}
	return &REPL{
		conv:      conv,
		logger:    logger.With(zap.String("component", "repl")),
		renderer:  NewRenderer(cfg.Width),
		in:        in,
		out:       out,
		userID:    userID,
		model:     cfg.Model,
		personaID: cfg.PersonaID,
	}
}

// Run 读取输入直到 EOF、/exit 或 ctx 取消
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, r.renderer.Banner(r.userID))

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(r.out, r.renderer.Prompt(r.userID))
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if exit := r.handleCommand(input); exit {
				return nil
			}
			continue
		}
		r.turn(ctx, input)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	fmt.Fprintln(r.out)
	return nil
}

// handleCommand 返回是否退出
func (r *REPL) handleCommand(input string) bool {
	parts := strings.Fields(input)
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch strings.ToLower(parts[0]) {
	case "/exit", "/quit", "/q":
		return true
	case "/new":
		r.chatID = ""
		fmt.Fprintln(r.out, r.renderer.Info("New chat started"))
	case "/model":
		if arg != "" {
			r.model = arg
		}
		fmt.Fprintln(r.out, r.renderer.Info("Model: "+orDefault(r.model)))
	case "/persona":
		if arg != "" {
			r.personaID = arg
			r.chatID = ""
		}
		fmt.Fprintln(r.out, r.renderer.Info("Persona: "+orDefault(r.personaID)))
	case "/memory":
		if _, ok := entity.ParseMemoryMode(arg); !ok {
			fmt.Fprintln(r.out, r.renderer.Error("memory mode must be auto, on or off"))
			break
		}
		r.memoryMode = arg
		fmt.Fprintln(r.out, r.renderer.Info("Memory: "+arg))
	case "/status":
		fmt.Fprintln(r.out, r.renderer.Status(map[string]string{
			"user":    r.userID,
			"chat":    orDefault(r.chatID),
			"model":   orDefault(r.model),
			"persona": orDefault(r.personaID),
			"memory":  orDefault(r.memoryMode),
		}))
	case "/help":
		fmt.Fprintln(r.out, r.renderer.Help())
	default:
		fmt.Fprintln(r.out, r.renderer.Error("unknown command, try /help"))
	}
	return false
}

func (r *REPL) turn(ctx context.Context, text string) {
	start := time.Now()
	res, err := r.conv.Execute(ctx, usecase.TurnInput{
		UserID:     r.userID,
		ChatID:     r.chatID,
		Text:       text,
		Model:      r.model,
		PersonaID:  r.personaID,
		MemoryMode: r.memoryMode,
	})
	if err != nil {
		r.logger.Debug("Turn failed", zap.Error(err))
		fmt.Fprintln(r.out, r.renderer.Error(domainErrors.MessageOf(err)))
		return
	}
	r.chatID = res.ChatID

	fmt.Fprintln(r.out, r.renderer.Reply(res.Reply))
	if res.MediaURL != "" {
		fmt.Fprintln(r.out, r.renderer.Info("Media: "+res.MediaURL))
	}
	if res.Offer != nil {
		fmt.Fprintln(r.out, r.renderer.Info(res.Offer.Question+" Prompt: "+res.Offer.Prompt))
	}
	fmt.Fprintln(r.out, r.renderer.Footer(res.Model, res.Intent, time.Since(start)))
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}
