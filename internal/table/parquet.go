package table

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
)

type kind int

const (
	kindNull kind = iota
	kindInt
	kindFloat
	kindBool
	kindString
)

func kindOf(v any) kind {
	switch x := v.(type) {
	case nil:
		return kindNull
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return kindInt
		}
		return kindFloat
	case int, int32, int64:
		return kindInt
	case float32, float64:
		return kindFloat
	case bool:
		return kindBool
	default:
		return kindString
	}
}

// merge widens a column kind to accept a new cell kind.
func merge(a, b kind) kind {
	switch {
	case a == b:
		return a
	case a == kindNull:
		return b
	case b == kindNull:
		return a
	case (a == kindInt && b == kindFloat) || (a == kindFloat && b == kindInt):
		return kindFloat
	default:
		return kindString
	}
}

func (k kind) arrowType() arrow.DataType {
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

// Schema infers an Arrow schema from the cells of t. Every column is
// nullable; columns mixing incompatible kinds are stored as strings.
func (t *Table) Schema() *arrow.Schema {
	fields, _ := t.inferFields()
	return arrow.NewSchema(fields, nil)
}

func (t *Table) inferFields() ([]arrow.Field, []kind) {
	kinds := make([]kind, len(t.cols))
	for i, col := range t.cols {
		k := kindNull
		for _, r := range t.rows {
			v, _ := r.Get(col)
			k = merge(k, kindOf(v))
		}
		kinds[i] = k
	}

	fields := make([]arrow.Field, len(t.cols))
	for i, col := range t.cols {
		fields[i] = arrow.Field{Name: col, Type: kinds[i].arrowType(), Nullable: true}
	}
	return fields, kinds
}

// WriteParquet encodes t as a single row group Parquet file into w.
func (t *Table) WriteParquet(w io.Writer) error {
	fields, kinds := t.inferFields()
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	for i, col := range t.cols {
		fb := b.Field(i)
		for _, r := range t.rows {
			v, _ := r.Get(col)
			if v == nil {
				fb.AppendNull()
				continue
			}
			if err := appendValue(fb, kinds[i], v); err != nil {
				return fmt.Errorf("column %s: %w", col, err)
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(schema, w, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return fmt.Errorf("write parquet record: %w", err)
	}
	return fw.Close()
}

func appendValue(fb array.Builder, k kind, v any) error {
	switch k {
	case kindInt:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		fb.(*array.Int64Builder).Append(n)
	case kindFloat:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		fb.(*array.Float64Builder).Append(f)
	case kindBool:
		fb.(*array.BooleanBuilder).Append(v.(bool))
	default:
		s, err := toString(v)
		if err != nil {
			return err
		}
		fb.(*array.StringBuilder).Append(s)
	}
	return nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Int64()
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	}
	return 0, fmt.Errorf("cannot convert %T to int64", v)
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Float64()
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case int, int32, int64:
		n, err := toInt64(x)
		return float64(n), err
	}
	return 0, fmt.Errorf("cannot convert %T to float64", v)
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int, int32, int64:
		n, _ := toInt64(x)
		return strconv.FormatInt(n, 10), nil
	case float32, float64:
		f, _ := toFloat64(x)
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
