package duckdb

import (
	"math"
	"math/big"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb/v2"
)

func TestCoerceValue(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	huge := new(big.Int).Lsh(big.NewInt(1), 70)

	cases := []struct {
		name  string
		value any
		want  any
	}{
		{name: "uuid", value: id, want: id.String()},
		{name: "uuid array", value: [16]byte(id), want: id.String()},
		{name: "safe int", value: int64(42), want: int64(42)},
		{name: "unsafe int", value: int64(math.MaxInt64), want: float64(math.MaxInt64)},
		{name: "bytes", value: []byte("hi"), want: "hi"},
		{name: "nested list", value: []any{huge, []byte("x")}, want: []any{float64(1 << 70), "x"}},
		{name: "map", value: duckdb.Map{int32(1): "a"}, want: map[string]any{"1": "a"}},
		{name: "struct", value: map[string]any{"n": math.NaN()}, want: map[string]any{"n": nil}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := coerceValue(tc.value); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("coerceValue(%#v) = %#v, want %#v", tc.value, got, tc.want)
			}
		})
	}
}

func TestCoerceDecimal(t *testing.T) {
	got, ok := coerceValue(duckdb.Decimal{Width: 5, Scale: 2, Value: big.NewInt(12345)}).(float64)
	if !ok {
		t.Fatalf("coerceValue(decimal) is not float64")
	}
	if math.Abs(got-123.45) > 1e-9 {
		t.Fatalf("coerceValue(decimal) = %v", got)
	}
}
