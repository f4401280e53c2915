package model

import (
	"context"
	"time"
)

// Chat roles persisted in long-term memory.
const (
	RoleHuman = "Human"
	RoleAI    = "AI"
)

// ChatHistory is one persisted conversational message. Two rows (Human then
// AI) are written per completed turn, at the end of the turn only.
type ChatHistory struct {
	TurnNum   int
	Role      string
	Content   string
	CreatedAt time.Time
}

// ShortMemory is the persisted per-turn digest used to reconstruct relevant
// history in later turns without replaying full transcripts.
type ShortMemory struct {
	TurnNum   int
	Summary   string
	SQLQuery  *string
	CreatedAt time.Time
}

// TurnRecord bundles everything persisted for one completed turn.
type TurnRecord struct {
	TurnNum  int
	Human    string
	AI       string
	Summary  string
	SQLQuery *string
}

// MemoryRepository owns the durable cross-turn state. A turn's graph run
// writes through it exactly once, in the terminal summarization stage.
type MemoryRepository interface {
	// Init ensures the backing tables exist.
	Init(ctx context.Context) error

	// PersistTurn writes the two chat rows and the short-memory row for a
	// completed turn atomically: either all three land or none do.
	PersistTurn(ctx context.Context, rec TurnRecord) error

	// ChatHistoryByTurn returns the messages of one turn ordered by creation.
	ChatHistoryByTurn(ctx context.Context, turnNum int) ([]ChatHistory, error)

	// ListShortMemories returns all digests in ascending turn order.
	ListShortMemories(ctx context.Context) ([]ShortMemory, error)

	// LastExecutedSQL returns the most recently persisted SQL query, or
	// ok=false when no turn has stored one.
	LastExecutedSQL(ctx context.Context) (string, bool, error)

	// LatestTurn returns the highest persisted turn number, 0 when empty.
	LatestTurn(ctx context.Context) (int, error)
}
