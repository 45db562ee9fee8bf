package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyPatchMergesAndProtects(t *testing.T) {
	now := time.Now()
	c := &Contract{
		ID:           "c1",
		ContractType: "common",
		Owner:        "broker",
		OwnerToken:   "tok",
		Rev:          "3-abc",
		DocType:      DocTypeContract,
		Title:        "old title",
		Status:       StatusActive,
		Value:        &Value{Amount: 100, Currency: "UAH"},
		DateModified: now,
		Revisions:    []Revision{{Author: "broker"}},
	}

	out, err := ApplyPatch(c, map[string]any{
		"title": "new title",
		"value": map[string]any{"amount": 250.0},
		// attempts on protected fields are overwritten after the merge
		"owner_token": "stolen",
		"id":          "other",
	})
	require.NoError(t, err)
	require.Equal(t, "new title", out.Title)
	require.Equal(t, 250.0, out.Value.Amount)
	// nested merge keeps untouched keys
	require.Equal(t, "UAH", out.Value.Currency)

	require.Equal(t, "c1", out.ID)
	require.Equal(t, "tok", out.OwnerToken)
	require.Equal(t, "3-abc", out.Rev)
	require.Equal(t, DocTypeContract, out.DocType)
	require.Equal(t, now, out.DateModified)
	require.Len(t, out.Revisions, 1)
}

func TestApplyPatchTypeMismatch(t *testing.T) {
	c := &Contract{ID: "c1", Status: StatusActive}
	_, err := ApplyPatch(c, map[string]any{"title": 42})
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "Invalid value type", ve.Errors[0].Description)
}

func TestApplyPatchBadDate(t *testing.T) {
	c := &Contract{ID: "c1", Status: StatusActive}
	_, err := ApplyPatch(c, map[string]any{"dateSigned": "not-a-date"})
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "Invalid date format", ve.Errors[0].Description)
}

func TestMergeMapsNullDeletes(t *testing.T) {
	dst := map[string]any{"a": 1, "b": map[string]any{"x": 1, "y": 2}}
	out := MergeMaps(dst, map[string]any{"a": nil, "b": map[string]any{"y": 3}})
	require.NotContains(t, out, "a")
	require.Equal(t, map[string]any{"x": 1, "y": 3}, out["b"])
	// dst untouched
	require.Equal(t, 1, dst["a"])
}

func TestStampTestModeIdempotent(t *testing.T) {
	c := &Contract{Mode: "test", Title: "roadworks"}
	StampTestMode(c)
	require.Equal(t, "[TESTING] roadworks", c.Title)
	StampTestMode(c)
	require.Equal(t, "[TESTING] roadworks", c.Title)

	real := &Contract{Title: "roadworks"}
	StampTestMode(real)
	require.Equal(t, "roadworks", real.Title)
}
