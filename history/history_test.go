package history_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/history"
)

func stores(t *testing.T) map[string]history.Store {
	t.Helper()
	file, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	mem, err := history.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		file.Close()
		mem.Close()
	})
	return map[string]history.Store{
		"memory":        history.NewMemoryStore(),
		"sqlite":        file,
		"sqlite-memory": mem,
	}
}

func TestStore_AppendRecent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, m := range []core.Message{
				core.UserMessage("你好"),
				core.AssistantMessage("你好！有什么可以帮你？"),
				core.UserMessage("我叫小明"),
				core.AssistantMessage("很高兴认识你，小明"),
			} {
				require.NoError(t, s.Append(ctx, "alice", m))
			}

			all, err := s.Recent(ctx, "alice", 0)
			require.NoError(t, err)
			require.Len(t, all, 4)
			assert.Equal(t, "你好", all[0].Content)
			assert.Equal(t, core.RoleAssistant, all[3].Role)

			last, err := s.Recent(ctx, "alice", 2)
			require.NoError(t, err)
			assert.Equal(t, []core.Message{
				core.UserMessage("我叫小明"),
				core.AssistantMessage("很高兴认识你，小明"),
			}, history.Messages(last))

			n, err := s.Count(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, 4, n)
		})
	}
}

func TestStore_IsolationAndClear(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Append(ctx, "alice", core.UserMessage("a")))
			require.NoError(t, s.Append(ctx, "bob", core.UserMessage("b")))

			bob, err := s.Recent(ctx, "bob", 10)
			require.NoError(t, err)
			require.Len(t, bob, 1)
			assert.Equal(t, "b", bob[0].Content)

			require.NoError(t, s.Clear(ctx, "alice"))
			n, err := s.Count(ctx, "alice")
			require.NoError(t, err)
			assert.Zero(t, n)

			n, err = s.Count(ctx, "bob")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			assert.ErrorIs(t, s.Append(ctx, "", core.UserMessage("x")), core.ErrMissingUser)
		})
	}
}

func TestSQLiteStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := history.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "alice", core.UserMessage("remember me")))
	require.NoError(t, s.Close())

	s, err = history.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	turns, err := s.Recent(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "remember me", turns[0].Content)
	assert.False(t, turns[0].CreatedAt.IsZero())
}
