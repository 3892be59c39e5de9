package pgsink

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvkit"
)

type copyCall struct {
	table   pgx.Identifier
	columns []string
	rows    [][]any
}

// fakeDB records COPY and Exec calls instead of talking to PostgreSQL.
type fakeDB struct {
	copies  []copyCall
	queries []string
	failOn  int // fail the nth COPY (1-based); 0 never fails
}

func (f *fakeDB) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	if f.failOn > 0 && len(f.copies)+1 == f.failOn {
		return 0, errors.New("connection reset")
	}
	call := copyCall{table: tableName, columns: columnNames}
	for rowSrc.Next() {
		values, err := rowSrc.Values()
		if err != nil {
			return 0, err
		}
		call.rows = append(call.rows, values)
	}
	if err := rowSrc.Err(); err != nil {
		return 0, err
	}
	f.copies = append(f.copies, call)
	return int64(len(call.rows)), nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func TestCopyRecords(t *testing.T) {
	db := &fakeDB{}
	header := csvkit.Header{"Transaction ID", "Amount", "Note"}
	records := []csvkit.Record{
		csvkit.NewRecord(header, []any{int64(1), 9.5, "first"}),
		csvkit.NewRecord([]string{"Transaction ID", "Amount"}, []any{int64(2), 3.0}),
	}

	n, err := CopyRecords(context.Background(), db, "public.payments", header, records)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.Len(t, db.copies, 1)
	call := db.copies[0]
	require.Equal(t, pgx.Identifier{"public", "payments"}, call.table)
	require.Equal(t, []string{"transaction_id", "amount", "note"}, call.columns)
	require.Equal(t, [][]any{
		{int64(1), 9.5, "first"},
		{int64(2), 3.0, nil},
	}, call.rows)
}

func TestCopyRecords_Empty(t *testing.T) {
	db := &fakeDB{}

	n, err := CopyRecords(context.Background(), db, "payments", nil, nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, db.copies)
}

func TestCopyRecords_HeaderFromFirstRecord(t *testing.T) {
	db := &fakeDB{}
	records := []csvkit.Record{csvkit.NewRecord([]string{"b", "a"}, []any{2, 1})}

	_, err := CopyRecords(context.Background(), db, "t", nil, records)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, db.copies[0].columns)
}

func TestCopyRecords_UnknownField(t *testing.T) {
	db := &fakeDB{}
	records := []csvkit.Record{csvkit.NewRecord([]string{"id", "extra"}, []any{1, 2})}

	_, err := CopyRecords(context.Background(), db, "t", csvkit.Header{"id"}, records)
	require.ErrorIs(t, err, csvkit.ErrConfiguration)

	var ce *csvkit.Error
	require.ErrorAs(t, err, &ce)
	require.Equal(t, csvkit.CodeUnknownField, ce.Code)
	require.Empty(t, db.copies)
}

func TestColumnNames_Collision(t *testing.T) {
	db := &fakeDB{}
	header := csvkit.Header{"id", "A b", "a_b"}
	records := []csvkit.Record{csvkit.NewRecord(header, []any{1, 2, 3})}

	_, err := CopyRecords(context.Background(), db, "t", header, records)
	require.ErrorIs(t, err, csvkit.ErrConfiguration)

	var ce *csvkit.Error
	require.ErrorAs(t, err, &ce)
	require.Equal(t, csvkit.CodeDuplicateField, ce.Code)
	require.Contains(t, err.Error(), "a_b")
	require.Empty(t, db.copies)

	tbl, err := csvkit.RecordsToTable(records, nil)
	require.NoError(t, err)
	defer tbl.Release()

	err = CreateTable(context.Background(), db, "t", tbl)
	require.ErrorAs(t, err, &ce)
	require.Equal(t, csvkit.CodeDuplicateField, ce.Code)
	require.Empty(t, db.queries)
}

func TestCopyRecords_ContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := csvkit.NewContext(context.Background(), logger)

	records := []csvkit.Record{csvkit.NewRecord([]string{"id"}, []any{1})}
	_, err := CopyRecords(ctx, &fakeDB{}, "payments", nil, records)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "records copied")
	require.Contains(t, buf.String(), "table=payments")
}

func TestCopyChunks(t *testing.T) {
	db := &fakeDB{}
	chunks := csvkit.RecordChunks(context.Background(), "../testdata/cities.csv", 4, csvkit.Options{})

	n, err := CopyChunks(context.Background(), db, "cities", nil, chunks)
	require.NoError(t, err)
	require.Equal(t, int64(10), n)
	require.Len(t, db.copies, 3)
	require.Equal(t, "latd", db.copies[0].columns[0])
	require.Equal(t, "Youngstown", db.copies[0].rows[0][8])
}

func TestCopyChunks_StopsOnDatabaseError(t *testing.T) {
	db := &fakeDB{failOn: 2}
	chunks := csvkit.RecordChunks(context.Background(), "../testdata/cities.csv", 4, csvkit.Options{})

	n, err := CopyChunks(context.Background(), db, "cities", nil, chunks)
	require.Error(t, err)
	require.Contains(t, err.Error(), "chunk 1")
	require.Equal(t, int64(4), n)
	require.Len(t, db.copies, 1)
}

func TestCopyChunks_StopsOnSequenceError(t *testing.T) {
	db := &fakeDB{}
	boom := errors.New("boom")
	var chunks iter.Seq2[[]csvkit.Record, error] = func(yield func([]csvkit.Record, error) bool) {
		if !yield([]csvkit.Record{csvkit.NewRecord([]string{"id"}, []any{1})}, nil) {
			return
		}
		yield(nil, boom)
	}

	n, err := CopyChunks(context.Background(), db, "t", nil, chunks)
	require.ErrorIs(t, err, boom)
	require.Equal(t, int64(1), n)
}

func TestCreateTable(t *testing.T) {
	db := &fakeDB{}
	records := []csvkit.Record{
		csvkit.NewRecord([]string{"Id", "Score", "Active", "Full Name"}, []any{int64(1), 2.5, true, "Ann"}),
	}
	tbl, err := csvkit.RecordsToTable(records, nil)
	require.NoError(t, err)
	defer tbl.Release()

	require.NoError(t, CreateTable(context.Background(), db, "staging.people", tbl))
	require.Equal(t, []string{
		`CREATE TABLE IF NOT EXISTS "staging"."people" ("id" bigint, "score" double precision, "active" boolean, "full_name" text)`,
	}, db.queries)
}

func TestCreateTable_NoColumns(t *testing.T) {
	tbl, err := csvkit.RecordsToTable(nil, nil)
	require.NoError(t, err)
	defer tbl.Release()

	err = CreateTable(context.Background(), &fakeDB{}, "t", tbl)
	require.ErrorIs(t, err, csvkit.ErrConfiguration)
}

func TestCopyTable(t *testing.T) {
	db := &fakeDB{}
	tbl, err := csvkit.ReadTable(context.Background(), "../testdata/cities.csv", csvkit.Options{})
	require.NoError(t, err)
	defer tbl.Release()

	n, err := CopyTable(context.Background(), db, "cities", tbl)
	require.NoError(t, err)
	require.Equal(t, int64(10), n)
	require.Equal(t, int64(41), db.copies[0].rows[0][0])
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "normal identifier", input: "users", want: `"users"`},
		{name: "mixed case preserved", input: "UserName", want: `"UserName"`},
		{name: "contains space", input: "user name", want: `"user name"`},
		{name: "contains double quote - escaped", input: `user"name`, want: `"user""name"`},
		{name: "sql injection attempt safely quoted", input: `users"; DROP TABLE users; --`, want: `"users""; DROP TABLE users; --"`},
		{name: "empty string", input: "", want: `""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quoteIdentifier(tt.input); got != tt.want {
				t.Errorf("quoteIdentifier(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestToColumnName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Transaction ID", "transaction_id"},
		{"account_name", "account_name"},
		{"LatD", "latd"},
	}

	for _, tt := range tests {
		if got := toColumnName(tt.input); got != tt.want {
			t.Errorf("toColumnName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
