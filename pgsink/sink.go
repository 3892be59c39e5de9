// Package pgsink loads csvkit records into PostgreSQL using the COPY
// protocol.
//
// Column names are derived from header fields the same way for every call:
// spaces become underscores and letters are lowercased, so "Transaction ID"
// is copied into transaction_id.
package pgsink

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/csvkit"
	"github.com/JonMunkholm/csvkit/internal/logging"
)

// CopyFromer is satisfied by *pgx.Conn, *pgxpool.Pool and pgx.Tx.
type CopyFromer interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Execer is satisfied by *pgx.Conn, *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// CopyRecords copies records into table in a single COPY and returns the
// number of rows copied. Values are sent in header order; fields missing
// from a record are NULL. An empty header takes the first record's keys.
// Fields not in the header fail the call before anything is sent.
func CopyRecords(ctx context.Context, db CopyFromer, table string, header csvkit.Header, records []csvkit.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if len(header) == 0 {
		header = csvkit.Header(records[0].Keys())
	}
	if err := header.Validate(); err != nil {
		return 0, err
	}

	for i, rec := range records {
		for _, k := range rec.Keys() {
			if header.Index(k) < 0 {
				return 0, &csvkit.Error{
					Kind: csvkit.ErrConfiguration,
					Code: csvkit.CodeUnknownField,
					Op:   "copy",
					Err:  fmt.Errorf("record %d: field %q not in header", i, k),
				}
			}
		}
	}

	columns, err := columnNames("copy", header)
	if err != nil {
		return 0, err
	}

	src := pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
		row := make([]any, len(header))
		for c, name := range header {
			row[c], _ = records[i].Get(name)
		}
		return row, nil
	})

	n, err := db.CopyFrom(ctx, identifier(table), columns, src)
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", table, err)
	}

	logging.FromContext(ctx).Debug("records copied", "table", table, "rows", n)
	return n, nil
}

// CopyChunks copies each batch from chunks with its own COPY and returns
// the total number of rows copied. It stops at the first error, from the
// sequence or from the database; batches copied before it are not undone
// unless db is a transaction the caller rolls back.
func CopyChunks(ctx context.Context, db CopyFromer, table string, header csvkit.Header, chunks iter.Seq2[[]csvkit.Record, error]) (int64, error) {
	var total int64
	batch := 0
	for records, err := range chunks {
		if err != nil {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := CopyRecords(ctx, db, table, header, records)
		total += n
		if err != nil {
			return total, fmt.Errorf("chunk %d: %w", batch, err)
		}
		batch++
	}

	logging.WithFields(ctx, "table", table).Debug("chunks copied", "chunks", batch, "rows", total)
	return total, nil
}

// CopyTable copies every row of tbl into table.
func CopyTable(ctx context.Context, db CopyFromer, table string, tbl *csvkit.Table) (int64, error) {
	return CopyRecords(ctx, db, table, tbl.Header(), tbl.Rows())
}

// CreateTable creates table, if it does not exist, with one column per
// column of tbl. Arrow types map to bigint, double precision, boolean and
// text.
func CreateTable(ctx context.Context, db Execer, table string, tbl *csvkit.Table) error {
	header := tbl.Header()
	if err := header.Validate(); err != nil {
		return err
	}

	columns, err := columnNames("create table", header)
	if err != nil {
		return err
	}

	schema := tbl.Batch().Schema()
	defs := make([]string, len(columns))
	for i, name := range columns {
		defs[i] = quoteIdentifier(name) + " " + sqlType(schema.Field(i).Type)
	}

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		identifier(table).Sanitize(),
		strings.Join(defs, ", "),
	)
	if _, err := db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

func sqlType(t arrow.DataType) string {
	switch t.ID() {
	case arrow.INT64:
		return "bigint"
	case arrow.FLOAT64:
		return "double precision"
	case arrow.BOOL:
		return "boolean"
	default:
		return "text"
	}
}

// identifier splits an optionally schema-qualified table name.
func identifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

// quoteIdentifier safely quotes a PostgreSQL identifier to prevent SQL injection.
// Double quotes within the identifier are escaped by doubling them.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// columnNames maps header to column names and fails (CFG003) when two
// fields map to the same column.
func columnNames(op string, header csvkit.Header) ([]string, error) {
	columns := make([]string, len(header))
	seen := make(map[string]string, len(header))
	for i, name := range header {
		col := toColumnName(name)
		if prev, ok := seen[col]; ok {
			return nil, &csvkit.Error{
				Kind: csvkit.ErrConfiguration,
				Code: csvkit.CodeDuplicateField,
				Op:   op,
				Err:  fmt.Errorf("fields %q and %q both map to column %q", prev, name, col),
			}
		}
		seen[col] = name
		columns[i] = col
	}
	return columns, nil
}

// toColumnName converts a header field to a database column name.
// "Transaction ID" -> "transaction_id"
func toColumnName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}
