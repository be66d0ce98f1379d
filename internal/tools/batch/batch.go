package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result represents the result of a single operation in a batch
type Result struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchResult represents the aggregated results of a batch operation
type BatchResult struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// Item is one entry of a batch request.
type Item map[string]interface{}

// ParseItems parses a parameter that holds a list of objects. It accepts a
// JSON array or object encoded as a string, an array of objects, or a single
// object. maxItems limits the list when positive.
func ParseItems(param interface{}, paramName string, maxItems int) ([]Item, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}

	var raw []interface{}
	switch v := param.(type) {
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		if strings.HasPrefix(text, "{") {
			text = "[" + text + "]"
		}
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, fmt.Errorf("%s is not a valid JSON array: %w", paramName, err)
		}
	case []interface{}:
		raw = v
	case map[string]interface{}:
		raw = []interface{}{v}
	default:
		return nil, fmt.Errorf("%s must be an array of objects", paramName)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", paramName)
	}
	if maxItems > 0 && len(raw) > maxItems {
		return nil, fmt.Errorf("%s has %d items, at most %d are allowed", paramName, len(raw), maxItems)
	}

	items := make([]Item, 0, len(raw))
	for i, entry := range raw {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be an object", paramName, i)
		}
		items = append(items, Item(obj))
	}
	return items, nil
}

// ID returns the item's identifier under key, or its position when the key
// is missing.
func (it Item) ID(key string, index int) string {
	switch v := it[key].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case float64:
		return fmt.Sprintf("%d", int64(v))
	case int, int64:
		return fmt.Sprintf("%d", v)
	}
	return fmt.Sprintf("#%d", index)
}

// FormatResults creates a formatted JSON string from batch results
func FormatResults(results []Result) string {
	br := BatchResult{
		Total:   len(results),
		Results: results,
	}

	for _, r := range results {
		if r.Status == StatusSuccess {
			br.Successful++
		} else {
			br.Failed++
		}
	}

	jsonBytes, _ := json.MarshalIndent(br, "", "  ")
	return string(jsonBytes)
}

// ProcessBatch runs fn on each item in order and collects the results. A
// failing item does not stop the batch; a cancelled context fails the
// items that have not run yet.
func ProcessBatch(ctx context.Context, items []Item, idKey string, fn func(ctx context.Context, item Item) (any, error)) []Result {
	results := make([]Result, 0, len(items))

	for i, item := range items {
		id := item.ID(idKey, i)
		if err := ctx.Err(); err != nil {
			results = append(results, NewErrorResult(id, err))
			continue
		}
		res, err := fn(ctx, item)
		if err != nil {
			results = append(results, NewErrorResult(id, err))
			continue
		}
		results = append(results, NewSuccessResult(id, res))
	}

	return results
}

// NewSuccessResult creates a success result
func NewSuccessResult(id string, result any) Result {
	return Result{
		ID:     id,
		Status: StatusSuccess,
		Result: result,
	}
}

// NewErrorResult creates an error result
func NewErrorResult(id string, err error) Result {
	return Result{
		ID:     id,
		Status: StatusError,
		Error:  err.Error(),
	}
}
