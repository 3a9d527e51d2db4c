package replicate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Errors returned by Output.URL for shapes outside the supported set.
var (
	ErrEmptyOutput       = errors.New("replicate: prediction output is empty")
	ErrUnsupportedOutput = errors.New("replicate: unsupported prediction output shape")
)

// Output is the raw JSON output of a succeeded prediction. Models are free
// to return any JSON value; video models return a URL in one of four shapes:
//
//	"https://..."                    raw URL
//	{"url": "https://..."}           URL object
//	["https://...", ...]             list of raw URLs
//	[{"url": "https://..."}, ...]    list of URL objects
type Output json.RawMessage

// MarshalJSON returns o as the raw JSON value.
func (o Output) MarshalJSON() ([]byte, error) {
	if len(o) == 0 {
		return []byte("null"), nil
	}
	return o, nil
}

// UnmarshalJSON stores a copy of data.
func (o *Output) UnmarshalJSON(data []byte) error {
	*o = append((*o)[:0], data...)
	return nil
}

// URL resolves the output to a single media URL. For list outputs the first
// element is used.
func (o Output) URL() (string, error) {
	raw := bytes.TrimSpace(o)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", ErrEmptyOutput
	}

	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return "", fmt.Errorf("decode output list: %w", err)
		}
		if len(items) == 0 {
			return "", ErrEmptyOutput
		}
		return scalarURL(items[0])
	}

	return scalarURL(raw)
}

// scalarURL resolves a raw URL string or a URL object.
func scalarURL(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", ErrEmptyOutput
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decode output url: %w", err)
		}
		if s == "" {
			return "", ErrEmptyOutput
		}
		return s, nil
	case '{':
		var obj struct {
			URL *string `json:"url"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnsupportedOutput, err)
		}
		if obj.URL == nil {
			return "", fmt.Errorf("%w: object has no url field", ErrUnsupportedOutput)
		}
		if *obj.URL == "" {
			return "", ErrEmptyOutput
		}
		return *obj.URL, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedOutput, truncate(raw, 64))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
