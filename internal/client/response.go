package client

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ResponseParser extracts values from JSON bodies with dotted paths such as
// $.data.empNumber or $.data[0].employeeId.
type ResponseParser struct{}

// NewResponseParser creates a new response parser.
func NewResponseParser() *ResponseParser {
	return &ResponseParser{}
}

// JSONPath resolves path in data.
func (p *ResponseParser) JSONPath(data []byte, path string) (any, error) {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return nil, fmt.Errorf("empty JSONPath")
	}

	var current any
	if err := json.Unmarshal(data, &current); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	for _, part := range strings.Split(path, ".") {
		field, index, hasIndex, err := splitIndex(part)
		if err != nil {
			return nil, err
		}
		if field != "" {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("field not found: %s", field)
			}
			if current, ok = obj[field]; !ok {
				return nil, fmt.Errorf("field not found: %s", field)
			}
		}
		if hasIndex {
			arr, ok := current.([]any)
			if !ok || index < 0 || index >= len(arr) {
				return nil, fmt.Errorf("array index out of bounds: %d", index)
			}
			current = arr[index]
		}
	}
	return current, nil
}

// splitIndex splits "list[2]" into ("list", 2, true).
func splitIndex(part string) (string, int, bool, error) {
	open := strings.IndexByte(part, '[')
	if open < 0 || !strings.HasSuffix(part, "]") {
		return part, 0, false, nil
	}
	idx, err := strconv.Atoi(part[open+1 : len(part)-1])
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid array index: %s", part)
	}
	return part[:open], idx, true, nil
}

// ExtractString extracts a value as a string. Numbers are formatted without exponent.
func (p *ResponseParser) ExtractString(data []byte, path string) (string, error) {
	value, err := p.JSONPath(data, path)
	if err != nil {
		return "", err
	}
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case nil:
		return "", nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// ExtractInt extracts an integer value.
func (p *ResponseParser) ExtractInt(data []byte, path string) (int, error) {
	value, err := p.JSONPath(data, path)
	if err != nil {
		return 0, err
	}
	switch v := value.(type) {
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", value)
	}
}

// ParseErrorResponse finds a human-readable message in an error body.
// OrangeHRM nests it under error.message.
func (p *ResponseParser) ParseErrorResponse(data []byte) string {
	for _, field := range []string{"error.message", "message", "error", "msg"} {
		if value, err := p.ExtractString(data, field); err == nil && value != "" {
			return value
		}
	}
	return string(data)
}
