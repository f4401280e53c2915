// Package repo persists long-term conversational memory: full chat
// transcripts per turn and the per-turn digests used as summarized history.
package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
	errx "github.com/reyharighy/cba-agentic-ai/internal/core/error"
	logx "github.com/reyharighy/cba-agentic-ai/pkg/logger"
)

// SQLiteMemoryRepository stores chat histories and short memories in the
// internal sqlite database. Writes happen once per turn, in the terminal
// summarization stage, atomically.
type SQLiteMemoryRepository struct {
	db *sql.DB
}

// NewSQLiteMemoryRepository wires the repository over an opened connection.
func NewSQLiteMemoryRepository(db *sql.DB) *SQLiteMemoryRepository {
	return &SQLiteMemoryRepository{db: db}
}

// Init ensures the backing tables exist.
func (r *SQLiteMemoryRepository) Init(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS chat_histories (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		turn_num   INTEGER NOT NULL,
		role       TEXT    NOT NULL,
		content    TEXT    NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chat_histories_turn ON chat_histories (turn_num, created_at);

	CREATE TABLE IF NOT EXISTS short_memories (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		turn_num   INTEGER NOT NULL UNIQUE,
		summary    TEXT    NOT NULL,
		sql_query  TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		logx.Error().Err(err).Msg("failed to initialize memory tables")
		return errx.WrapMemory(err)
	}
	return nil
}

// PersistTurn writes the Human row, the AI row, and the short-memory digest
// for one completed turn in a single transaction.
func (r *SQLiteMemoryRepository) PersistTurn(ctx context.Context, rec model.TurnRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		logx.Error().Err(err).Int("turn_num", rec.TurnNum).Msg("failed to begin memory transaction")
		return errx.WrapMemory(err)
	}
	defer tx.Rollback()

	const insertChat = `INSERT INTO chat_histories (turn_num, role, content) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertChat, rec.TurnNum, model.RoleHuman, rec.Human); err != nil {
		logx.Error().Err(err).Int("turn_num", rec.TurnNum).Msg("failed to store human message")
		return errx.WrapMemory(err)
	}
	if _, err := tx.ExecContext(ctx, insertChat, rec.TurnNum, model.RoleAI, rec.AI); err != nil {
		logx.Error().Err(err).Int("turn_num", rec.TurnNum).Msg("failed to store ai message")
		return errx.WrapMemory(err)
	}

	const insertMemory = `INSERT INTO short_memories (turn_num, summary, sql_query) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertMemory, rec.TurnNum, rec.Summary, rec.SQLQuery); err != nil {
		logx.Error().Err(err).Int("turn_num", rec.TurnNum).Msg("failed to store short memory")
		return errx.WrapMemory(err)
	}

	if err := tx.Commit(); err != nil {
		logx.Error().Err(err).Int("turn_num", rec.TurnNum).Msg("failed to commit memory transaction")
		return errx.WrapMemory(err)
	}
	return nil
}

// ChatHistoryByTurn returns the messages of one turn ordered by creation.
func (r *SQLiteMemoryRepository) ChatHistoryByTurn(ctx context.Context, turnNum int) ([]model.ChatHistory, error) {
	const q = `SELECT turn_num, role, content, created_at FROM chat_histories WHERE turn_num = ? ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, q, turnNum)
	if err != nil {
		logx.Error().Err(err).Int("turn_num", turnNum).Msg("failed to load chat history")
		return nil, errx.WrapMemory(err)
	}
	defer rows.Close()

	var chats []model.ChatHistory
	for rows.Next() {
		var c model.ChatHistory
		if err := rows.Scan(&c.TurnNum, &c.Role, &c.Content, &c.CreatedAt); err != nil {
			return nil, errx.WrapMemory(fmt.Errorf("scan chat history: %w", err))
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapMemory(err)
	}
	return chats, nil
}

// ListShortMemories returns all digests in ascending turn order.
func (r *SQLiteMemoryRepository) ListShortMemories(ctx context.Context) ([]model.ShortMemory, error) {
	const q = `SELECT turn_num, summary, sql_query, created_at FROM short_memories ORDER BY turn_num`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		logx.Error().Err(err).Msg("failed to list short memories")
		return nil, errx.WrapMemory(err)
	}
	defer rows.Close()

	var memories []model.ShortMemory
	for rows.Next() {
		var m model.ShortMemory
		if err := rows.Scan(&m.TurnNum, &m.Summary, &m.SQLQuery, &m.CreatedAt); err != nil {
			return nil, errx.WrapMemory(fmt.Errorf("scan short memory: %w", err))
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapMemory(err)
	}
	return memories, nil
}

// LastExecutedSQL returns the most recently persisted SQL query, or ok=false
// when no turn has stored one.
func (r *SQLiteMemoryRepository) LastExecutedSQL(ctx context.Context) (string, bool, error) {
	const q = `SELECT sql_query FROM short_memories WHERE sql_query IS NOT NULL ORDER BY created_at DESC, turn_num DESC LIMIT 1`

	var sqlQuery string
	err := r.db.QueryRowContext(ctx, q).Scan(&sqlQuery)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		logx.Error().Err(err).Msg("failed to load last executed sql query")
		return "", false, errx.WrapMemory(err)
	}
	return sqlQuery, true, nil
}

// LatestTurn returns the highest persisted turn number, zero when empty.
func (r *SQLiteMemoryRepository) LatestTurn(ctx context.Context) (int, error) {
	const q = `SELECT COALESCE(MAX(turn_num), 0) FROM short_memories`

	var turn int
	if err := r.db.QueryRowContext(ctx, q).Scan(&turn); err != nil {
		logx.Error().Err(err).Msg("failed to resolve latest turn")
		return 0, errx.WrapMemory(err)
	}
	return turn, nil
}

var _ model.MemoryRepository = (*SQLiteMemoryRepository)(nil)
