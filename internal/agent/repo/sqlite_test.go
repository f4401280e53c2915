package repo

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
)

func newTestRepo(t *testing.T) *SQLiteMemoryRepository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	r := NewSQLiteMemoryRepository(db)
	require.NoError(t, r.Init(context.Background()))
	return r
}

func strptr(s string) *string { return &s }

func TestPersistTurnWritesAllThreeRows(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	err := r.PersistTurn(ctx, model.TurnRecord{
		TurnNum:  1,
		Human:    "What were total sales last month?",
		AI:       "Total sales last month were 417.5.",
		Summary:  "asked for last month's total sales",
		SQLQuery: strptr("SELECT SUM(amount) FROM orders"),
	})
	require.NoError(t, err)

	chats, err := r.ChatHistoryByTurn(ctx, 1)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, model.RoleHuman, chats[0].Role)
	assert.Equal(t, "What were total sales last month?", chats[0].Content)
	assert.Equal(t, model.RoleAI, chats[1].Role)

	memories, err := r.ListShortMemories(ctx)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "asked for last month's total sales", memories[0].Summary)
	require.NotNil(t, memories[0].SQLQuery)
	assert.Equal(t, "SELECT SUM(amount) FROM orders", *memories[0].SQLQuery)
}

func TestPersistTurnAtomicOnDuplicate(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.PersistTurn(ctx, model.TurnRecord{TurnNum: 1, Human: "q", AI: "a", Summary: "s"}))

	// duplicate turn_num violates the short_memories constraint; the chat
	// rows written earlier in the transaction must roll back with it
	err := r.PersistTurn(ctx, model.TurnRecord{TurnNum: 1, Human: "q2", AI: "a2", Summary: "s2"})
	require.Error(t, err)

	chats, err := r.ChatHistoryByTurn(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, chats, 2)

	memories, err := r.ListShortMemories(ctx)
	require.NoError(t, err)
	assert.Len(t, memories, 1)
	assert.Equal(t, "s", memories[0].Summary)
}

func TestListShortMemoriesAscendingTurnOrder(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.PersistTurn(ctx, model.TurnRecord{TurnNum: 2, Human: "q2", AI: "a2", Summary: "second"}))
	require.NoError(t, r.PersistTurn(ctx, model.TurnRecord{TurnNum: 1, Human: "q1", AI: "a1", Summary: "first"}))

	memories, err := r.ListShortMemories(ctx)
	require.NoError(t, err)
	require.Len(t, memories, 2)
	assert.Equal(t, 1, memories[0].TurnNum)
	assert.Equal(t, 2, memories[1].TurnNum)
}

func TestLastExecutedSQLSkipsTurnsWithoutQuery(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, ok, err := r.LastExecutedSQL(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.PersistTurn(ctx, model.TurnRecord{
		TurnNum: 1, Human: "q1", AI: "a1", Summary: "s1",
		SQLQuery: strptr("SELECT 1"),
	}))
	require.NoError(t, r.PersistTurn(ctx, model.TurnRecord{
		TurnNum: 2, Human: "q2", AI: "a2", Summary: "s2",
	}))

	sqlQuery, ok, err := r.LastExecutedSQL(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "SELECT 1", sqlQuery)
}

func TestLatestTurn(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	latest, err := r.LatestTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, latest)

	require.NoError(t, r.PersistTurn(ctx, model.TurnRecord{TurnNum: 1, Human: "q", AI: "a", Summary: "s"}))
	require.NoError(t, r.PersistTurn(ctx, model.TurnRecord{TurnNum: 2, Human: "q", AI: "a", Summary: "s"}))

	latest, err = r.LatestTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, latest)
}
