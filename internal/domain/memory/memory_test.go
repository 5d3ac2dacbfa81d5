package memory

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/repository"
)

type fakeMemories struct {
	rows []*entity.Memory
}

func (f *fakeMemories) Create(_ context.Context, m *entity.Memory) error {
	f.rows = append(f.rows, m)
	return nil
}

func (f *fakeMemories) Find(_ context.Context, q repository.MemoryQuery) ([]*entity.Memory, error) {
	var out []*entity.Memory
	for _, m := range f.rows {
		if m.UserID != q.UserID || m.Tier != q.Tier {
			continue
		}
		if q.Tier != entity.TierGlobal && m.TierRefID != q.RefID {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.NewestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeMemories) Delete(context.Context, string, string) error { return nil }

type fakeMessages struct {
	rows []*entity.Message
}

func (f *fakeMessages) Append(_ context.Context, m *entity.Message) error {
	f.rows = append(f.rows, m)
	return nil
}

func (f *fakeMessages) Recent(_ context.Context, chatID string, limit int) ([]*entity.Message, error) {
	var out []*entity.Message
	for i := len(f.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if f.rows[i].ChatID == chatID {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func mem(tier entity.MemoryTier, ref, content string, minute int) *entity.Memory {
	return &entity.Memory{ID: content, UserID: "u1", Tier: tier, TierRefID: ref, Content: content, CreatedAt: base.Add(time.Duration(minute) * time.Minute)}
}

func TestAssemble_OrderAndScoping(t *testing.T) {
	store := &fakeMemories{rows: []*entity.Memory{
		mem(entity.TierChat, "c1", "chat-old", 1),
		mem(entity.TierPersona, "p1", "persona-fact", 2),
		mem(entity.TierGlobal, "", "global-fact", 3),
		mem(entity.TierWorkspace, "w1", "workspace-fact", 4),
		mem(entity.TierChat, "c1", "chat-new", 5),
		mem(entity.TierPersona, "p2", "other-persona", 6),
		mem(entity.TierChat, "c2", "other-chat", 7),
	}}
	a := NewAssembler(store, nil, 12)
	persona := &entity.Persona{ID: "p1", Name: "Ari", Traits: entity.DefaultTraits(), SystemPrompt: "Be brief."}

	got, err := a.Assemble(context.Background(), ContextRequest{
		UserID:           "u1",
		ChatID:           "c1",
		Persona:          persona,
		WorkspaceID:      "w1",
		Mode:             entity.MemoryModeAuto,
		ImageInstruction: "IMAGE",
	})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(got), 7)
	assert.Equal(t, []string{"global-fact", "workspace-fact", "persona-fact", "chat-old", "chat-new"}, got[:5])
	assert.Equal(t, "You are Ari.", got[5])
	assert.Equal(t, "Be brief.", got[len(got)-2])
	assert.Equal(t, "IMAGE", got[len(got)-1])

	joined := strings.Join(got, "\n")
	assert.NotContains(t, joined, "other-persona")
	assert.NotContains(t, joined, "other-chat")
}

func TestAssemble_ChatWindowKeepsNewestInChronologicalOrder(t *testing.T) {
	store := &fakeMemories{}
	for i := 0; i < 5; i++ {
		store.rows = append(store.rows, mem(entity.TierChat, "c1", string(rune('a'+i)), i))
	}
	a := NewAssembler(store, nil, 3)

	got, err := a.Assemble(context.Background(), ContextRequest{UserID: "u1", ChatID: "c1", Mode: entity.MemoryModeOn})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d", "e"}, got)
}

func TestAssemble_ModeOffSkipsMemories(t *testing.T) {
	store := &fakeMemories{rows: []*entity.Memory{mem(entity.TierGlobal, "", "global-fact", 1)}}
	a := NewAssembler(store, nil, 12)
	persona := &entity.Persona{ID: "p1", Name: "Ari", Traits: entity.DefaultTraits()}

	got, err := a.Assemble(context.Background(), ContextRequest{UserID: "u1", ChatID: "c1", Persona: persona, Mode: entity.MemoryModeOff})
	require.NoError(t, err)
	assert.NotContains(t, got, "global-fact")
	assert.Equal(t, "You are Ari.", got[0])
}

func TestVisualIdentityContext_PersonaProfile(t *testing.T) {
	a := NewAssembler(&fakeMemories{}, &fakeMessages{}, 12)
	persona := &entity.Persona{
		ID:                 "p1",
		Name:               "Ari",
		Traits:             entity.ParseTraits([]byte(`{"gender":"female","age":"28"}`)),
		PersonalityDetails: "Short silver hair and round glasses.",
	}

	hint, err := a.VisualIdentityContext(context.Background(), VisualRequest{UserID: "u1", Persona: persona})
	require.NoError(t, err)
	assert.Contains(t, hint, "assistant persona is 'Ari'")
	assert.Contains(t, strings.ToLower(hint), "silver hair")
	assert.Contains(t, hint, "female")
	assert.Contains(t, hint, "28")
}

func TestVisualIdentityContext_ScopedCues(t *testing.T) {
	store := &fakeMemories{rows: []*entity.Memory{
		mem(entity.TierChat, "chat-1", "I wear a green scarf", 1),
		mem(entity.TierPersona, "persona-1", "My hair is short", 2),
		mem(entity.TierWorkspace, "workspace-1", "I have blue eyes", 3),
		mem(entity.TierPersona, "persona-2", "I wear a red hat", 4),
		mem(entity.TierWorkspace, "workspace-2", "I have purple hair", 5),
	}}
	msgs := &fakeMessages{rows: []*entity.Message{
		{ID: "m1", ChatID: "chat-1", Role: entity.RoleUser, Text: "My avatar has freckles", CreatedAt: base},
	}}
	a := NewAssembler(store, msgs, 12)

	hint, err := a.VisualIdentityContext(context.Background(), VisualRequest{
		UserID:      "u1",
		ChatID:      "chat-1",
		Persona:     &entity.Persona{ID: "persona-1", Name: "Ari"},
		WorkspaceID: "workspace-1",
	})
	require.NoError(t, err)
	lower := strings.ToLower(hint)
	assert.Contains(t, lower, "green scarf")
	assert.Contains(t, lower, "blue eyes")
	assert.Contains(t, lower, "hair is short")
	assert.Contains(t, lower, "freckles")
	assert.NotContains(t, lower, "red hat")
	assert.NotContains(t, lower, "purple hair")
}

func TestVisualIdentityContext_SkipsPromptAndRepeats(t *testing.T) {
	store := &fakeMemories{rows: []*entity.Memory{
		mem(entity.TierChat, "chat-1", "ideas for a poster?", 1),
	}}
	msgs := &fakeMessages{rows: []*entity.Message{
		{ID: "m1", ChatID: "chat-1", Role: entity.RoleUser, Text: "ideas for a poster?", CreatedAt: base},
		{ID: "m2", ChatID: "chat-1", Role: entity.RoleUser, Text: "a fox in snow", CreatedAt: base.Add(time.Minute)},
	}}
	a := NewAssembler(store, msgs, 12)

	hint, err := a.VisualIdentityContext(context.Background(), VisualRequest{UserID: "u1", ChatID: "chat-1", Prompt: "a fox in snow"})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(hint, "ideas for a poster?"))
	assert.NotContains(t, hint, "a fox in snow")
}

func TestVisualIdentityContext_EmptyWhenNothingKnown(t *testing.T) {
	a := NewAssembler(&fakeMemories{}, &fakeMessages{}, 12)
	hint, err := a.VisualIdentityContext(context.Background(), VisualRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, hint)
}

func TestShouldRememberFact(t *testing.T) {
	assert.True(t, ShouldRememberFact("Hi there, just so you know my name is Sam, thanks!", 280))
	assert.True(t, ShouldRememberFact("Remember that I prefer tea", 280))
	assert.True(t, ShouldRememberFact("I like jazz", 280))
	assert.False(t, ShouldRememberFact("what's the weather", 280))
	assert.False(t, ShouldRememberFact("my name is Sam "+strings.Repeat("x", 400), 280))
}

func TestFactTier(t *testing.T) {
	tier, ref := FactTier(nil)
	assert.Equal(t, entity.TierGlobal, tier)
	assert.Empty(t, ref)

	tier, ref = FactTier(&entity.Persona{ID: "p1"})
	assert.Equal(t, entity.TierPersona, tier)
	assert.Equal(t, "p1", ref)
}

func TestWriter_RecordTurn(t *testing.T) {
	now := func() time.Time { return base }
	short := "Hello! Just so you know, my name is Sam. Thanks."

	t.Run("short fact writes chat and persona rows", func(t *testing.T) {
		store := &fakeMemories{}
		w := NewWriter(store, 280, now)
		written, err := w.RecordTurn(context.Background(), TurnRecord{
			UserID: "u1", ChatID: "c1", Persona: &entity.Persona{ID: "p1"},
			Mode: entity.MemoryModeAuto, Text: short, AutoSaveFacts: true,
		})
		require.NoError(t, err)
		require.Len(t, written, 2)
		assert.Equal(t, entity.TierChat, written[0].Tier)
		assert.Equal(t, entity.TierPersona, written[1].Tier)
		assert.Len(t, store.rows, 2)
	})

	t.Run("long text writes only the chat row", func(t *testing.T) {
		store := &fakeMemories{}
		w := NewWriter(store, 280, now)
		long := "my name is Sam " + strings.Repeat("and more ", 45)
		written, err := w.RecordTurn(context.Background(), TurnRecord{
			UserID: "u1", ChatID: "c1", Mode: entity.MemoryModeAuto, Text: long, AutoSaveFacts: true,
		})
		require.NoError(t, err)
		require.Len(t, written, 1)
		assert.Equal(t, entity.TierChat, written[0].Tier)
	})

	t.Run("without persona the fact is global", func(t *testing.T) {
		store := &fakeMemories{}
		w := NewWriter(store, 280, now)
		written, err := w.RecordTurn(context.Background(), TurnRecord{
			UserID: "u1", ChatID: "c1", Mode: entity.MemoryModeAuto, Text: short, AutoSaveFacts: true,
		})
		require.NoError(t, err)
		require.Len(t, written, 2)
		assert.Equal(t, entity.TierGlobal, written[1].Tier)
		assert.Empty(t, written[1].TierRefID)
	})

	t.Run("on and off modes never write", func(t *testing.T) {
		store := &fakeMemories{}
		w := NewWriter(store, 280, now)
		for _, mode := range []entity.MemoryMode{entity.MemoryModeOn, entity.MemoryModeOff} {
			written, err := w.RecordTurn(context.Background(), TurnRecord{UserID: "u1", ChatID: "c1", Mode: mode, Text: short, AutoSaveFacts: true})
			require.NoError(t, err)
			assert.Empty(t, written)
		}
		assert.Empty(t, store.rows)
	})

	t.Run("fact saving can be turned off", func(t *testing.T) {
		store := &fakeMemories{}
		w := NewWriter(store, 280, now)
		written, err := w.RecordTurn(context.Background(), TurnRecord{UserID: "u1", ChatID: "c1", Mode: entity.MemoryModeAuto, Text: short})
		require.NoError(t, err)
		assert.Len(t, written, 1)
	})
}
