package batch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItems(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		maxItems int
		wantLen  int
		wantErr  string
	}{
		{
			name:    "json array",
			input:   `[{"appointmentId": 1}, {"appointmentId": 2}]`,
			wantLen: 2,
		},
		{
			name:    "json object",
			input:   `{"appointmentId": 1}`,
			wantLen: 1,
		},
		{
			name:    "array of objects",
			input:   []interface{}{map[string]interface{}{"appointmentId": float64(1)}},
			wantLen: 1,
		},
		{
			name:    "single object",
			input:   map[string]interface{}{"appointmentId": float64(1)},
			wantLen: 1,
		},
		{
			name:    "nil input",
			input:   nil,
			wantErr: "updates is required",
		},
		{
			name:    "empty string",
			input:   "  ",
			wantErr: "cannot be empty",
		},
		{
			name:    "empty array",
			input:   `[]`,
			wantErr: "cannot be empty",
		},
		{
			name:    "invalid json",
			input:   `[{"appointmentId": }]`,
			wantErr: "not a valid JSON array",
		},
		{
			name:    "array with non-object",
			input:   []interface{}{map[string]interface{}{}, "x"},
			wantErr: "updates[1] must be an object",
		},
		{
			name:    "invalid type",
			input:   123,
			wantErr: "must be an array of objects",
		},
		{
			name:     "too many items",
			input:    `[{}, {}, {}]`,
			maxItems: 2,
			wantErr:  "at most 2 are allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseItems(tt.input, "updates", tt.maxItems)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestItemID(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want string
	}{
		{name: "number", item: Item{"appointmentId": float64(42)}, want: "42"},
		{name: "string", item: Item{"appointmentId": " 7 "}, want: "7"},
		{name: "int", item: Item{"appointmentId": 3}, want: "3"},
		{name: "missing", item: Item{}, want: "#4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.item.ID("appointmentId", 4))
		})
	}
}

func TestFormatResults(t *testing.T) {
	results := []Result{
		NewSuccessResult("1", map[string]string{"title": "Standup"}),
		NewErrorResult("2", errors.New("not found")),
		NewSuccessResult("3", "done"),
	}

	var br BatchResult
	require.NoError(t, json.Unmarshal([]byte(FormatResults(results)), &br))

	assert.Equal(t, 3, br.Total)
	assert.Equal(t, 2, br.Successful)
	assert.Equal(t, 1, br.Failed)
	assert.Equal(t, StatusError, br.Results[1].Status)
	assert.Equal(t, "not found", br.Results[1].Error)
}

func TestProcessBatch(t *testing.T) {
	items := []Item{
		{"appointmentId": float64(1)},
		{"appointmentId": float64(2)},
		{"title": "no id"},
	}

	var seen []string
	results := ProcessBatch(context.Background(), items, "appointmentId", func(ctx context.Context, item Item) (any, error) {
		id := item.ID("appointmentId", -1)
		seen = append(seen, id)
		if id == "2" {
			return nil, errors.New("appointment 2 is cancelled")
		}
		return "ok", nil
	})

	require.Len(t, results, 3)
	assert.Equal(t, []string{"1", "2", "#-1"}, seen)

	assert.Equal(t, Result{ID: "1", Status: StatusSuccess, Result: "ok"}, results[0])
	assert.Equal(t, Result{ID: "2", Status: StatusError, Error: "appointment 2 is cancelled"}, results[1])
	assert.Equal(t, "#2", results[2].ID)
	assert.Equal(t, StatusSuccess, results[2].Status)
}

func TestProcessBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	items := []Item{{"appointmentId": float64(1)}, {"appointmentId": float64(2)}}
	calls := 0
	results := ProcessBatch(ctx, items, "appointmentId", func(ctx context.Context, item Item) (any, error) {
		calls++
		cancel()
		return "ok", nil
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, StatusError, results[1].Status)
	assert.Equal(t, context.Canceled.Error(), results[1].Error)
}
