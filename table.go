package csvkit

import (
	"context"
	"errors"
	"io"
	"iter"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Table is a columnar batch of rows backed by an Arrow record. Call Release
// when done with it.
type Table struct {
	header Header
	batch  arrow.Record
	index  map[string]int
}

// columnKind is the inferred type of a column.
type columnKind int

const (
	kindNone columnKind = iota // no non-nil values seen
	kindInt
	kindFloat
	kindBool
	kindString
)

func (k columnKind) merge(other columnKind) columnKind {
	switch {
	case k == kindNone:
		return other
	case other == kindNone, k == other:
		return k
	case (k == kindInt && other == kindFloat) || (k == kindFloat && other == kindInt):
		return kindFloat
	default:
		return kindString
	}
}

func (k columnKind) arrowType() arrow.DataType {
	switch k {
	case kindInt:
		return arrow.PrimitiveTypes.Int64
	case kindFloat:
		return arrow.PrimitiveTypes.Float64
	case kindBool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

// kindOf classifies a record value. Unsigned values above math.MaxInt64 do
// not fit an Int64 column and are treated as text.
func kindOf(v any) columnKind {
	switch tv := v.(type) {
	case nil:
		return kindNone
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return kindInt
	case uint:
		if uint64(tv) > math.MaxInt64 {
			return kindString
		}
		return kindInt
	case uint64:
		if tv > math.MaxInt64 {
			return kindString
		}
		return kindInt
	case float32, float64:
		return kindFloat
	case bool:
		return kindBool
	default:
		return kindString
	}
}

func toInt64(v any) int64 {
	switch tv := v.(type) {
	case int:
		return int64(tv)
	case int8:
		return int64(tv)
	case int16:
		return int64(tv)
	case int32:
		return int64(tv)
	case int64:
		return tv
	case uint:
		return int64(tv)
	case uint8:
		return int64(tv)
	case uint16:
		return int64(tv)
	case uint32:
		return int64(tv)
	case uint64:
		return int64(tv)
	}
	return 0
}

func toFloat64(v any) float64 {
	switch tv := v.(type) {
	case float32:
		return float64(tv)
	case float64:
		return tv
	}
	return float64(toInt64(v))
}

// RecordsToTable assembles records into a Table.
//
// Columns are the header fields followed by any keys that first appear in
// later records, in order of appearance. Missing fields become nulls. Column
// types are inferred: all integers give Int64, integers mixed with floats
// give Float64, all booleans give Boolean and anything else is stored as
// text rendered with FormatValue.
//
// With no records the table has zero rows and exactly the header's columns.
func RecordsToTable(records []Record, header Header) (*Table, error) {
	return buildTable(memory.DefaultAllocator, records, header)
}

// CollectTable drains seq into a Table. The first error from seq is
// returned and no table is built.
func CollectTable(seq iter.Seq2[Record, error], header Header) (*Table, error) {
	var records []Record
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return RecordsToTable(records, header)
}

// ReadTable reads all of path into a Table. The file header defines the
// columns, so an empty file still yields a table with the header's columns.
func ReadTable(ctx context.Context, path string, opts Options) (*Table, error) {
	s, err := opts.resolve("read", path)
	if err != nil {
		return nil, err
	}

	r, err := Open(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var records []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := r.Close(); err != nil {
		return nil, err
	}

	return buildTable(s.alloc, records, r.Header())
}

// TableChunks reads path as a sequence of Tables of at most size rows.
// Each yielded Table must be released by the caller.
func TableChunks(ctx context.Context, path string, size int, opts Options) iter.Seq2[*Table, error] {
	return func(yield func(*Table, error) bool) {
		s, err := opts.resolve("read", path)
		if err != nil {
			yield(nil, err)
			return
		}

		for batch, err := range RecordChunks(ctx, path, size, opts) {
			if err != nil {
				yield(nil, err)
				return
			}
			tbl, err := buildTable(s.alloc, batch, nil)
			if !yield(tbl, err) || err != nil {
				return
			}
		}
	}
}

func buildTable(alloc memory.Allocator, records []Record, header Header) (*Table, error) {
	if err := header.validateUnique(); err != nil {
		return nil, err
	}

	columns := make(Header, len(header), len(header)+1)
	copy(columns, header)
	index := make(map[string]int, len(header))
	for i, name := range columns {
		index[name] = i
	}
	for _, rec := range records {
		for _, key := range rec.keys {
			if _, ok := index[key]; !ok {
				index[key] = len(columns)
				columns = append(columns, key)
			}
		}
	}

	kinds := make([]columnKind, len(columns))
	for i, name := range columns {
		for _, rec := range records {
			v, _ := rec.Get(name)
			kinds[i] = kinds[i].merge(kindOf(v))
		}
	}

	fields := make([]arrow.Field, len(columns))
	for i, name := range columns {
		fields[i] = arrow.Field{Name: name, Type: kinds[i].arrowType(), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(alloc, schema)
	defer b.Release()

	for i, name := range columns {
		switch fb := b.Field(i).(type) {
		case *array.Int64Builder:
			fb.Reserve(len(records))
			for _, rec := range records {
				if v, _ := rec.Get(name); v != nil {
					fb.Append(toInt64(v))
				} else {
					fb.AppendNull()
				}
			}
		case *array.Float64Builder:
			fb.Reserve(len(records))
			for _, rec := range records {
				if v, _ := rec.Get(name); v != nil {
					fb.Append(toFloat64(v))
				} else {
					fb.AppendNull()
				}
			}
		case *array.BooleanBuilder:
			fb.Reserve(len(records))
			for _, rec := range records {
				if v, _ := rec.Get(name); v != nil {
					fb.Append(v.(bool))
				} else {
					fb.AppendNull()
				}
			}
		case *array.StringBuilder:
			fb.Reserve(len(records))
			for _, rec := range records {
				if v, _ := rec.Get(name); v != nil {
					fb.Append(FormatValue(v))
				} else {
					fb.AppendNull()
				}
			}
		}
	}

	return &Table{header: columns, batch: b.NewRecord(), index: index}, nil
}

// Header returns the column names in order.
func (t *Table) Header() Header {
	out := make(Header, len(t.header))
	copy(out, t.header)
	return out
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return int(t.batch.NumRows())
}

// Value returns the cell at row for the named column, or nil when the cell
// is null or the column does not exist.
func (t *Table) Value(row int, column string) any {
	i, ok := t.index[column]
	if !ok {
		return nil
	}
	return cellValue(t.batch.Column(i), row)
}

func cellValue(col arrow.Array, row int) any {
	if col.IsNull(row) {
		return nil
	}
	switch arr := col.(type) {
	case *array.Int64:
		return arr.Value(row)
	case *array.Float64:
		return arr.Value(row)
	case *array.Boolean:
		return arr.Value(row)
	case *array.String:
		return arr.Value(row)
	}
	return nil
}

// Row returns row i as a Record. Null cells hold nil.
func (t *Table) Row(i int) Record {
	values := make(map[string]any, len(t.header))
	for c, name := range t.header {
		values[name] = cellValue(t.batch.Column(c), i)
	}
	return newRecordFromHeader(t.header, values)
}

// Rows returns every row as a Record.
func (t *Table) Rows() []Record {
	out := make([]Record, t.NumRows())
	for i := range out {
		out[i] = t.Row(i)
	}
	return out
}

// Column returns the Arrow array for name, or nil. The array is owned by
// the table; Retain it to use it after Release.
func (t *Table) Column(name string) arrow.Array {
	i, ok := t.index[name]
	if !ok {
		return nil
	}
	return t.batch.Column(i)
}

// Batch returns the underlying Arrow record. It is owned by the table;
// Retain it to use it after Release.
func (t *Table) Batch() arrow.Record {
	return t.batch
}

// Release frees the table's Arrow memory.
func (t *Table) Release() {
	if t.batch != nil {
		t.batch.Release()
		t.batch = nil
	}
}
