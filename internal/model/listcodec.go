package model

import (
	"encoding/json"
	"fmt"
)

// EncodeList renders a string list as flat JSON text for the cache.
// nil maps to SQL NULL so that nil and empty survive the round trip distinctly.
// Elements must be valid UTF-8; KindSpec.ValidatePatch refuses anything else.
func EncodeList(l []string) any {
	if l == nil {
		return nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		// []string always marshals
		panic(err)
	}
	return string(b)
}

// DecodeList parses text produced by EncodeList. Empty text decodes to an empty list.
func DecodeList(s string) ([]string, error) {
	if s == "" {
		return []string{}, nil
	}
	out := []string{}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return out, nil
}
