// Package datastore implements the external database collaborator: schema
// introspection with sample values, the SQL safety gate, and read-only
// extraction into the per-turn working dataset.
package datastore

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
	logx "github.com/reyharighy/cba-agentic-ai/pkg/logger"
)

const workingDatasetFile = "working_dataset.csv"

// Store reads the external business database over a sqlite connection and
// materializes query results as the working dataset consumed by the sandbox.
type Store struct {
	db           *sql.DB
	workspaceDir string
}

// New wires a Store over an opened external database connection.
func New(db *sql.DB, workspaceDir string) *Store {
	return &Store{db: db, workspaceDir: workspaceDir}
}

// WorkingDatasetPath returns the location of the materialized dataset.
func (s *Store) WorkingDatasetPath() string {
	return filepath.Join(s.workspaceDir, workingDatasetFile)
}

// InspectSchema introspects tables and columns. Non-temporal columns carry
// sample values (text columns all distinct values, others capped at three);
// temporal columns carry their earliest and latest observed values.
func (s *Store) InspectSchema(ctx context.Context) (*model.DatabaseSchema, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	dbSchema := &model.DatabaseSchema{
		Tables:  tables,
		Columns: make(map[string][]model.ColumnInfo, len(tables)),
	}
	for _, table := range tables {
		cols, err := s.inspectTable(ctx, table)
		if err != nil {
			return nil, err
		}
		dbSchema.Columns[table] = cols
	}
	return dbSchema, nil
}

func (s *Store) inspectTable(ctx context.Context, table string) ([]model.ColumnInfo, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []model.ColumnInfo
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scan column info: %w", err)
		}
		cols = append(cols, model.ColumnInfo{
			Name:     name,
			Type:     typ,
			Temporal: temporalType(typ),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}

	for i := range cols {
		if cols[i].Temporal {
			if err := s.fillTemporalRange(ctx, table, &cols[i]); err != nil {
				return nil, err
			}
			continue
		}
		if err := s.fillSampleValues(ctx, table, &cols[i]); err != nil {
			return nil, err
		}
	}
	return cols, nil
}

func (s *Store) fillTemporalRange(ctx context.Context, table string, col *model.ColumnInfo) error {
	q := fmt.Sprintf(`SELECT MIN(%[1]s), MAX(%[1]s) FROM %[2]s WHERE %[1]s IS NOT NULL`,
		quoteIdent(col.Name), quoteIdent(table))

	var earliest, latest sql.NullString
	if err := s.db.QueryRowContext(ctx, q).Scan(&earliest, &latest); err != nil {
		return fmt.Errorf("temporal range %s.%s: %w", table, col.Name, err)
	}
	col.Earliest = earliest.String
	col.Latest = latest.String
	return nil
}

func (s *Store) fillSampleValues(ctx context.Context, table string, col *model.ColumnInfo) error {
	q := fmt.Sprintf(`SELECT DISTINCT %[1]s FROM %[2]s WHERE %[1]s IS NOT NULL ORDER BY %[1]s`,
		quoteIdent(col.Name), quoteIdent(table))
	if !textType(col.Type) {
		q += " LIMIT 3"
	}

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("sample values %s.%s: %w", table, col.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return fmt.Errorf("scan sample value: %w", err)
		}
		col.SampleValues = append(col.SampleValues, renderValue(v))
	}
	return rows.Err()
}

// Validate applies the safety gate. A nil result means the statement may run.
func (s *Store) Validate(sqlStr string, dbSchema *model.DatabaseSchema) *model.QueryError {
	return validateStatement(s.db, sqlStr, dbSchema)
}

// Extract runs a validated read-only statement and materializes the working
// dataset, replacing any previous artifact.
func (s *Store) Extract(ctx context.Context, sqlStr string) *model.QueryError {
	rows, err := s.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return &model.QueryError{Kind: model.QueryErrRuntime, Message: err.Error()}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return &model.QueryError{Kind: model.QueryErrRuntime, Message: err.Error()}
	}

	if err := os.MkdirAll(s.workspaceDir, 0o755); err != nil {
		return &model.QueryError{Kind: model.QueryErrRuntime, Message: err.Error()}
	}
	f, err := os.Create(s.WorkingDatasetPath())
	if err != nil {
		return &model.QueryError{Kind: model.QueryErrRuntime, Message: err.Error()}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return &model.QueryError{Kind: model.QueryErrRuntime, Message: err.Error()}
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return &model.QueryError{Kind: model.QueryErrRuntime, Message: err.Error()}
		}
		record := make([]string, len(columns))
		for i, v := range values {
			record[i] = renderValue(v)
		}
		if err := w.Write(record); err != nil {
			return &model.QueryError{Kind: model.QueryErrRuntime, Message: err.Error()}
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return &model.QueryError{Kind: model.QueryErrRuntime, Message: err.Error()}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return &model.QueryError{Kind: model.QueryErrRuntime, Message: err.Error()}
	}

	logx.Debug().Int("rows", count).Str("path", s.WorkingDatasetPath()).Msg("Working dataset materialized")
	return nil
}

func temporalType(typ string) bool {
	t := strings.ToUpper(typ)
	return strings.Contains(t, "DATE") || strings.Contains(t, "TIME")
}

func textType(typ string) bool {
	t := strings.ToUpper(typ)
	return strings.Contains(t, "CHAR") || strings.Contains(t, "TEXT") || strings.Contains(t, "CLOB")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case time.Time:
		// the driver scans declared DATETIME columns as time.Time; render
		// them in the layout pandas and the type inference both parse
		return t.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(t)
	}
}
