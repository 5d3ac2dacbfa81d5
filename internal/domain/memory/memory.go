package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/internal/domain/service"
)

// DefaultChatWindow 会话层记忆读取窗口
const DefaultChatWindow = 12

// ContextRequest 组装系统提示所需的输入
type ContextRequest struct {
	UserID           string
	ChatID           string
	Persona          *entity.Persona // nil when the chat has no persona
	WorkspaceID      string
	Mode             entity.MemoryMode
	ImageInstruction string // empty when image directives are disabled
}

// Assembler 构建系统提示片段
//
// Fragment order is fixed and significant: global, workspace, persona and
// chat memories, then the persona block, then the image instruction. Later
// fragments win when the model weighs recency.
type Assembler struct {
	memories   repository.MemoryRepository
	messages   repository.MessageRepository
	chatWindow int
}

// NewAssembler 创建上下文组装器
func NewAssembler(memories repository.MemoryRepository, messages repository.MessageRepository, chatWindow int) *Assembler {
	if chatWindow <= 0 {
		chatWindow = DefaultChatWindow
	}
	return &Assembler{memories: memories, messages: messages, chatWindow: chatWindow}
}

// Assemble returns the ordered system fragments for one turn. It never writes.
// Memory reads are skipped entirely when the chat's mode is off; the persona
// block and image instruction are always included.
func (a *Assembler) Assemble(ctx context.Context, req ContextRequest) ([]string, error) {
	var fragments []string

	if req.Mode.ReadsMemory() {
		tiers := []repository.MemoryQuery{{UserID: req.UserID, Tier: entity.TierGlobal}}
		if req.WorkspaceID != "" {
			tiers = append(tiers, repository.MemoryQuery{UserID: req.UserID, Tier: entity.TierWorkspace, RefID: req.WorkspaceID})
		}
		if req.Persona != nil {
			tiers = append(tiers, repository.MemoryQuery{UserID: req.UserID, Tier: entity.TierPersona, RefID: req.Persona.ID})
		}
		for _, q := range tiers {
			found, err := a.memories.Find(ctx, q)
			if err != nil {
				return nil, fmt.Errorf("load %s memories: %w", q.Tier, err)
			}
			fragments = appendContents(fragments, found)
		}

		if req.ChatID != "" {
			recent, err := a.memories.Find(ctx, repository.MemoryQuery{
				UserID:      req.UserID,
				Tier:        entity.TierChat,
				RefID:       req.ChatID,
				Limit:       a.chatWindow,
				NewestFirst: true,
			})
			if err != nil {
				return nil, fmt.Errorf("load chat memories: %w", err)
			}
			reverse(recent)
			fragments = appendContents(fragments, recent)
		}
	}

	fragments = append(fragments, service.PersonaInstructions(req.Persona)...)
	if req.ImageInstruction != "" {
		fragments = append(fragments, req.ImageInstruction)
	}
	return fragments, nil
}

// VisualRequest 视觉身份提示的范围
type VisualRequest struct {
	UserID      string
	ChatID      string
	Persona     *entity.Persona
	WorkspaceID string
	// Prompt is the text being generated. It is never repeated as a cue.
	Prompt string
}

const (
	visualCuesPerTier  = 5
	visualRecentTexts  = 6
	visualCueMaxRunes  = 200
	visualIdentityHead = "Visual identity notes for continuity:"
)

// VisualIdentityContext 生成图片一致性提示
//
// Cues come only from the chat, the chat's persona and the chat's workspace.
// Memories of other personas or workspaces never leak in. Returns "" when
// there is nothing to say.
func (a *Assembler) VisualIdentityContext(ctx context.Context, req VisualRequest) (string, error) {
	var parts []string

	if p := req.Persona; p != nil {
		parts = append(parts, fmt.Sprintf("The assistant persona is '%s'.", p.Name))
		t := p.Traits.Normalized()
		switch t.Gender {
		case entity.GenderUnspecified:
		case entity.GenderOther:
			if t.GenderOther != "" {
				parts = append(parts, "Persona gender: "+t.GenderOther+".")
			}
		default:
			parts = append(parts, "Persona gender: "+string(t.Gender)+".")
		}
		if t.Age != "" {
			parts = append(parts, "Persona age: "+t.Age+".")
		}
		if d := strings.TrimSpace(p.PersonalityDetails); d != "" {
			parts = append(parts, "Persona details: "+clip(d)+".")
		}
	}

	var scopes []repository.MemoryQuery
	if req.ChatID != "" {
		scopes = append(scopes, repository.MemoryQuery{Tier: entity.TierChat, RefID: req.ChatID})
	}
	if req.Persona != nil {
		scopes = append(scopes, repository.MemoryQuery{Tier: entity.TierPersona, RefID: req.Persona.ID})
	}
	if req.WorkspaceID != "" {
		scopes = append(scopes, repository.MemoryQuery{Tier: entity.TierWorkspace, RefID: req.WorkspaceID})
	}

	var cues []string
	seen := map[string]bool{strings.TrimSpace(req.Prompt): true}
	addCue := func(text string) {
		key := strings.TrimSpace(text)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		cues = append(cues, clip(text))
	}
	for _, q := range scopes {
		q.UserID = req.UserID
		q.Limit = visualCuesPerTier
		q.NewestFirst = true
		found, err := a.memories.Find(ctx, q)
		if err != nil {
			return "", fmt.Errorf("load %s cues: %w", q.Tier, err)
		}
		for _, m := range found {
			addCue(m.Content)
		}
	}

	if req.ChatID != "" && a.messages != nil {
		recent, err := a.messages.Recent(ctx, req.ChatID, visualRecentTexts)
		if err != nil {
			return "", fmt.Errorf("load recent messages: %w", err)
		}
		reverse(recent)
		for _, m := range recent {
			if m.Role == entity.RoleUser {
				addCue(m.Text)
			}
		}
	}

	if len(cues) > 0 {
		parts = append(parts, "Known appearance and context cues: "+strings.Join(cues, "; ")+".")
	}
	if len(parts) == 0 {
		return "", nil
	}
	return visualIdentityHead + " " + strings.Join(parts, " "), nil
}

func appendContents(dst []string, memories []*entity.Memory) []string {
	for _, m := range memories {
		if c := strings.TrimSpace(m.Content); c != "" {
			dst = append(dst, c)
		}
	}
	return dst
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= visualCueMaxRunes {
		return s
	}
	r := []rune(s)
	return string(r[:visualCueMaxRunes]) + "..."
}

// DefaultFactMaxLen 事实记忆的长度上限 (不含)
const DefaultFactMaxLen = 280

var factMarkers = []string{"my ", "i like", "remember", "name is"}

// ShouldRememberFact reports whether a user message looks like a durable fact:
// shorter than maxLen characters and carrying a first-person or "remember" marker.
func ShouldRememberFact(text string, maxLen int) bool {
	if maxLen <= 0 {
		maxLen = DefaultFactMaxLen
	}
	if utf8.RuneCountInString(text) >= maxLen {
		return false
	}
	lower := strings.ToLower(text)
	for _, m := range factMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// FactTier picks where a remembered fact goes: the persona when there is one,
// global otherwise.
func FactTier(persona *entity.Persona) (entity.MemoryTier, string) {
	if persona != nil {
		return entity.TierPersona, persona.ID
	}
	return entity.TierGlobal, ""
}

// TurnRecord 一轮对话结束后的记忆写入输入
type TurnRecord struct {
	UserID        string
	ChatID        string
	Persona       *entity.Persona
	Mode          entity.MemoryMode
	Text          string
	AutoSaveFacts bool
}

// Writer 记忆写入器 (仅在 auto 模式下写入)
type Writer struct {
	memories repository.MemoryRepository
	maxLen   int
	now      func() time.Time
}

// NewWriter 创建记忆写入器
func NewWriter(memories repository.MemoryRepository, maxLen int, now func() time.Time) *Writer {
	if now == nil {
		now = time.Now
	}
	return &Writer{memories: memories, maxLen: maxLen, now: now}
}

// RecordTurn appends the chat-tier entry for every auto turn and a fact
// memory when the text qualifies. Rows are never updated or pruned here.
func (w *Writer) RecordTurn(ctx context.Context, rec TurnRecord) ([]*entity.Memory, error) {
	if rec.Mode != entity.MemoryModeAuto || strings.TrimSpace(rec.Text) == "" {
		return nil, nil
	}
	at := w.now().UTC()
	var written []*entity.Memory

	if rec.ChatID != "" {
		m, err := entity.NewMemory(uuid.New().String(), rec.UserID, entity.TierChat, rec.ChatID, rec.Text, at)
		if err != nil {
			return nil, err
		}
		if err := w.memories.Create(ctx, m); err != nil {
			return nil, fmt.Errorf("save chat memory: %w", err)
		}
		written = append(written, m)
	}

	if rec.AutoSaveFacts && ShouldRememberFact(rec.Text, w.maxLen) {
		tier, ref := FactTier(rec.Persona)
		m, err := entity.NewMemory(uuid.New().String(), rec.UserID, tier, ref, rec.Text, at)
		if err != nil {
			return written, err
		}
		if err := w.memories.Create(ctx, m); err != nil {
			return written, fmt.Errorf("save %s memory: %w", tier, err)
		}
		written = append(written, m)
	}
	return written, nil
}
