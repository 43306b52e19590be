package models

import (
	"bytes"
	"encoding/json"
)

// Page is the upstream pagination envelope: {count, next, previous, results}.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// UnmarshalPage decodes a list response that may be either a pagination
// envelope or a bare JSON array. Bare arrays are wrapped as results.
func UnmarshalPage[T any](data []byte) (Page[T], error) {
	var page Page[T]
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return page, err
		}
		page.Count = len(items)
		page.Results = items
		return page, nil
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return page, err
	}
	if page.Results == nil {
		page.Results = []T{}
	}
	return page, nil
}
