package table_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-blob-pipeline/internal/table"
)

func TestDecodeObjectKeepsKeyOrder(t *testing.T) {
	t.Parallel()

	obj, err := table.DecodeObject(strings.NewReader(`{"z":1,"a":{"y":"x","b":[1,2]},"m":null}`))
	require.NoError(t, err)

	keys := make([]string, 0, len(obj))
	for _, m := range obj {
		keys = append(keys, m.Key)
	}
	require.Equal(t, []string{"z", "a", "m"}, keys)

	nested, ok := obj.Get("a")
	require.True(t, ok)
	require.IsType(t, table.Object{}, nested)

	out, err := json.Marshal(obj)
	require.NoError(t, err)
	require.JSONEq(t, `{"z":1,"a":{"y":"x","b":[1,2]},"m":null}`, string(out))
	require.True(t, strings.HasPrefix(string(out), `{"z":1,"a":{"y"`), "key order must survive encoding")
}

func TestDecodeObjectRejectsNonObjects(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Array":     `[1,2]`,
		"Scalar":    `"x"`,
		"Truncated": `{"a":`,
		"Empty":     ``,
	}

	for name, in := range tests {
		in := in
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := table.DecodeObject(strings.NewReader(in))
			require.Error(t, err)
		})
	}
}

func TestFlattenObject(t *testing.T) {
	t.Parallel()

	var obj table.Object
	require.NoError(t, json.Unmarshal([]byte(`{"coord":{"lon":10.5,"lat":45},"main":{"temp":280.3,"deep":{"x":true}},"name":"Verona","empty":{},"list":[1]}`), &obj))

	row := table.FlattenObject(obj, "_")
	require.Equal(t, []string{"coord_lon", "coord_lat", "main_temp", "main_deep_x", "name", "list"}, row.Columns())

	v, ok := row.Get("main_temp")
	require.True(t, ok)
	require.Equal(t, json.Number("280.3"), v)

	v, ok = row.Get("main_deep_x")
	require.True(t, ok)
	require.Equal(t, true, v)
}

func TestRowDropAndPrefix(t *testing.T) {
	t.Parallel()

	r := table.NewRow()
	r.Set("a", 1)
	r.Set("b", 2)
	r.Set("c", 3)
	r.Set("a", 4)
	r.Drop("b")
	r.Drop("missing")

	require.Equal(t, []string{"a", "c"}, r.Columns())
	v, _ := r.Get("a")
	require.Equal(t, 4, v)

	p := r.Prefix("weather_")
	require.Equal(t, []string{"weather_a", "weather_c"}, p.Columns())
	require.Equal(t, []string{"a", "c"}, r.Columns(), "prefix must not modify the source row")
}

func TestConcatUnionsColumnsAndFillsNulls(t *testing.T) {
	t.Parallel()

	r1 := table.NewRow()
	r1.Set("name", "A")
	r1.Set("rain_1h", 0.5)

	r2 := table.NewRow()
	r2.Set("name", "B")
	r2.Set("snow_1h", 1.5)

	tbl := table.Concat(r1, r2)
	require.Equal(t, 2, tbl.Len())
	require.Equal(t, []string{"name", "rain_1h", "snow_1h"}, tbl.Columns())

	v, ok := tbl.Value(1, "rain_1h")
	require.False(t, ok)
	require.Nil(t, v)

	v, ok = tbl.Value(1, "name")
	require.True(t, ok)
	require.Equal(t, "B", v)

	require.True(t, table.Concat().Empty())
	var nilTable *table.Table
	require.True(t, nilTable.Empty())
}

func TestSchemaInference(t *testing.T) {
	t.Parallel()

	r1 := table.NewRow()
	r1.Set("id", json.Number("1"))
	r1.Set("temp", json.Number("1"))
	r1.Set("ok", true)
	r1.Set("mixed", "x")
	r1.Set("nothing", nil)

	r2 := table.NewRow()
	r2.Set("id", json.Number("2"))
	r2.Set("temp", json.Number("2.5"))
	r2.Set("mixed", json.Number("3"))

	schema := table.Concat(r1, r2).Schema()

	want := map[string]arrow.DataType{
		"id":      arrow.PrimitiveTypes.Int64,
		"temp":    arrow.PrimitiveTypes.Float64,
		"ok":      arrow.FixedWidthTypes.Boolean,
		"mixed":   arrow.BinaryTypes.String,
		"nothing": arrow.BinaryTypes.String,
	}
	for name, typ := range want {
		idx := schema.FieldIndices(name)
		require.Len(t, idx, 1, "field %s", name)
		require.True(t, arrow.TypeEqual(typ, schema.Field(idx[0]).Type), "field %s has type %s", name, schema.Field(idx[0]).Type)
		require.True(t, schema.Field(idx[0]).Nullable)
	}
}

func TestWriteParquet(t *testing.T) {
	t.Parallel()

	r1 := table.NewRow()
	r1.Set("name", "A")
	r1.Set("main_temp", json.Number("280.3"))
	r1.Set("list", []any{json.Number("1")})

	r2 := table.NewRow()
	r2.Set("name", "B")
	r2.Set("visibility", json.Number("10000"))

	var buf bytes.Buffer
	require.NoError(t, table.Concat(r1, r2).WriteParquet(&buf))
	require.NotZero(t, buf.Len())

	got, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(buf.Bytes()),
		parquet.NewReaderProperties(memory.DefaultAllocator), pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)
	defer got.Release()

	require.EqualValues(t, 2, got.NumRows())
	require.EqualValues(t, 4, got.NumCols())
	require.Equal(t, "visibility", got.Schema().Field(3).Name)
}
