// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package jsonx provides best-effort structured extraction from free text.
//
// Language models are asked to return strict JSON but frequently wrap it in
// prose, markdown fences, or trailing commentary. Extract tries a strict
// parse first and falls back to the first balanced {...} object found in the
// input. Every call site must define its own fallback value for the case
// where nothing parseable exists.
package jsonx

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoObject is returned when the input contains no parseable JSON object.
var ErrNoObject = errors.New("jsonx: no JSON object in input")

// Extract unmarshals raw into v. If raw is not strict JSON it scans for the
// first balanced top-level object and parses that instead.
func Extract(raw string, v any) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ErrNoObject
	}
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}
	obj, ok := FirstObject(trimmed)
	if !ok {
		return ErrNoObject
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return err
	}
	return nil
}

// FirstObject returns the first balanced {...} substring of s, honoring
// string literals and escapes so braces inside quoted values do not
// terminate the scan. The candidate is validated before being returned.
func FirstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if gjson.Valid(candidate) {
						return candidate, true
					}
					return "", false
				}
			}
		}
	}
	// Unbalanced: fall back to the widest {...} span, the original lenient
	// behavior for models that truncate mid-object.
	end := strings.LastIndexByte(s, '}')
	if end > start {
		candidate := s[start : end+1]
		if gjson.Valid(candidate) {
			return candidate, true
		}
	}
	return "", false
}
