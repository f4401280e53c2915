package model

import "context"

// QueryErrorKind classifies structured faults from the data collaborator.
type QueryErrorKind string

const (
	// QueryErrForbidden marks a statement rejected for containing a
	// mutating operation. It never reaches the database.
	QueryErrForbidden QueryErrorKind = "forbidden"
	// QueryErrSchema marks a statement referencing unknown tables or columns.
	QueryErrSchema QueryErrorKind = "schema"
	// QueryErrSyntax marks a statement the engine cannot parse.
	QueryErrSyntax QueryErrorKind = "syntax"
	// QueryErrRuntime marks a fault raised while executing a valid statement.
	QueryErrRuntime QueryErrorKind = "runtime"
	// QueryErrRepeated marks a statement identical to the one the gate just
	// rejected; resubmissions must differ.
	QueryErrRepeated QueryErrorKind = "repeated"
)

// QueryError is a structured data-retrieval fault fed back into the
// planning repair loop. It is a domain value, not a Go error: recoverable
// faults never leave the graph.
type QueryError struct {
	Kind    QueryErrorKind `json:"kind"`
	Message string         `json:"message"`
}

// ColumnInfo describes one column of an external table, with either sample
// values or, for temporal columns, the earliest and latest observed values.
type ColumnInfo struct {
	Name         string
	Type         string
	SampleValues []string
	Earliest     string
	Latest       string
	Temporal     bool
}

// DatabaseSchema is the introspected shape of the external business database.
type DatabaseSchema struct {
	Tables  []string
	Columns map[string][]ColumnInfo
}

// HasTable reports whether the schema contains the named table.
func (s *DatabaseSchema) HasTable(name string) bool {
	for _, t := range s.Tables {
		if t == name {
			return true
		}
	}
	return false
}

// DataStore is the external database collaborator: schema introspection,
// statement validation, and read-only extraction into the working dataset.
// Faults are structured QueryError values, never raw driver errors.
type DataStore interface {
	// InspectSchema returns tables and columns with types and representative
	// values. Output ordering is deterministic.
	InspectSchema(ctx context.Context) (*DatabaseSchema, error)

	// Validate applies the safety gate: forbidden-statement scan, schema
	// reference check, then a read-only syntax check. A nil result means the
	// statement may be executed.
	Validate(sql string, schema *DatabaseSchema) *QueryError

	// Extract runs a validated read-only statement and materializes the
	// working dataset file for this turn, replacing any previous artifact.
	Extract(ctx context.Context, sql string) *QueryError

	// WorkingDatasetPath returns the location of the materialized dataset.
	WorkingDatasetPath() string

	// DescribeWorkingDataset renders the dataset's column names, inferred
	// types, and representative values. Byte-identical across calls while
	// the underlying file is unchanged.
	DescribeWorkingDataset() (string, error)
}
