package contract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiffIdempotent(t *testing.T) {
	c := &Contract{ID: "c1", Title: "roadworks", Status: StatusActive, Value: &Value{Amount: 500, Currency: "UAH"}}
	plain := Project(c, nil, PurposePlain, "")
	require.Empty(t, Diff(plain, plain))
}

func TestDiffFieldOps(t *testing.T) {
	before := map[string]any{"title": "old", "status": "active", "terminationDetails": "x"}
	after := map[string]any{"title": "new", "status": "active", "description": "added"}

	ops := Diff(before, after)
	require.Equal(t, []Op{
		{Op: OpAdd, Path: "description", Value: "added"},
		{Op: OpRemove, Path: "terminationDetails"},
		{Op: OpReplace, Path: "title", Value: "new"},
	}, ops)
}

func TestDiffNestedPaths(t *testing.T) {
	before := map[string]any{"value": map[string]any{"amount": 100.0, "currency": "UAH"}}
	after := map[string]any{"value": map[string]any{"amount": 200.0, "currency": "UAH"}}

	ops := Diff(before, after)
	require.Equal(t, []Op{{Op: OpReplace, Path: "value/amount", Value: 200.0}}, ops)
}

func TestDiffSliceElementWise(t *testing.T) {
	before := map[string]any{"items": []any{map[string]any{"id": "i1", "quantity": 1.0}}}
	after := map[string]any{"items": []any{map[string]any{"id": "i1", "quantity": 3.0}}}

	ops := Diff(before, after)
	require.Equal(t, []Op{{Op: OpReplace, Path: "items/0/quantity", Value: 3.0}}, ops)
}

func TestDiffSliceGrowthReplacesWhole(t *testing.T) {
	before := map[string]any{"items": []any{map[string]any{"id": "i1"}}}
	after := map[string]any{"items": []any{map[string]any{"id": "i1"}, map[string]any{"id": "i2"}}}

	ops := Diff(before, after)
	require.Len(t, ops, 1)
	require.Equal(t, OpReplace, ops[0].Op)
	require.Equal(t, "items", ops[0].Path)
}

func TestDiffDeterministicOrder(t *testing.T) {
	before := map[string]any{}
	after := map[string]any{"b": 1.0, "a": 2.0, "c": 3.0}

	first := Diff(before, after)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Diff(before, after))
	}
	require.Equal(t, "a", first[0].Path)
	require.Equal(t, "b", first[1].Path)
	require.Equal(t, "c", first[2].Path)
}
