package common

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/slotkeeper/internal/calendar"
)

// GetStringArg returns a trimmed string argument, or "" when it is absent.
func GetStringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// GetInt64Arg returns an integer argument. JSON numbers arrive as float64;
// numeric strings are accepted as well. ok is false when the argument is
// absent or empty.
func GetInt64Arg(args map[string]interface{}, key string) (value int64, ok bool, err error) {
	raw, present := args[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false, calendar.Validationf("%s must be an integer, got %v", key, v)
		}
		return int64(v), true, nil
	case int:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false, calendar.Validationf("%s must be an integer, got %q", key, v)
		}
		return n, true, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false, calendar.Validationf("%s must be an integer, got %q", key, v)
		}
		return n, true, nil
	default:
		return 0, false, calendar.Validationf("%s must be an integer", key)
	}
}

// RequireInt64Arg is GetInt64Arg for mandatory arguments.
func RequireInt64Arg(args map[string]interface{}, key string) (int64, error) {
	v, ok, err := GetInt64Arg(args, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, calendar.Validationf("%s is required", key)
	}
	return v, nil
}

// GetIntArg returns an integer argument or def when it is absent.
func GetIntArg(args map[string]interface{}, key string, def int) (int, error) {
	v, ok, err := GetInt64Arg(args, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return int(v), nil
}

// GetBoolArg returns a boolean argument or def when it is absent.
func GetBoolArg(args map[string]interface{}, key string, def bool) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// RequireTimeArg parses a mandatory ISO-8601 timestamp argument.
func RequireTimeArg(args map[string]interface{}, key string) (time.Time, error) {
	s := GetStringArg(args, key)
	if s == "" {
		return time.Time{}, calendar.Validationf("%s is required", key)
	}
	t, err := calendar.ParseTime(s)
	if err != nil {
		return time.Time{}, calendar.Validationf("%s: invalid timestamp %q (expected ISO-8601, e.g. 2025-03-10T09:00:00Z)", key, s)
	}
	return t, nil
}

// GetTimeArg parses an optional timestamp argument. ok is false when it is
// absent.
func GetTimeArg(args map[string]interface{}, key string) (t time.Time, ok bool, err error) {
	if GetStringArg(args, key) == "" {
		return time.Time{}, false, nil
	}
	t, err = RequireTimeArg(args, key)
	return t, err == nil, err
}

// RequireDateArg parses a mandatory YYYY-MM-DD argument as a local date.
func RequireDateArg(args map[string]interface{}, key string, loc *time.Location) (time.Time, error) {
	s := GetStringArg(args, key)
	if s == "" {
		return time.Time{}, calendar.Validationf("%s is required", key)
	}
	d, err := calendar.ParseDate(s, loc)
	if err != nil {
		return time.Time{}, calendar.Validationf("%s: invalid date %q (expected YYYY-MM-DD)", key, s)
	}
	return d, nil
}

// JSONResult renders v as an indented JSON text result.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
