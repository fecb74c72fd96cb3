// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package topic implements canonical hierarchical topic paths: ordered
// non-empty segments, joined by '/' for their canonical string form,
// with sub-path (prefix) expansion for broker fan-out.
package topic

import (
	"errors"
	"strings"
)

// ErrEmptyPath is returned when canonicalization leaves no segments —
// an empty canonical path is invalid for subscription.
var ErrEmptyPath = errors.New("topic: empty canonical path")

// Topic is an ordered sequence of non-empty path segments.
type Topic struct {
	Segments []string
}

// New canonicalizes rawSegments: embedded '/' characters are stripped out
// of each segment and empty segments are discarded.
func New(rawSegments []string) (Topic, error) {
	cleaned := make([]string, 0, len(rawSegments))
	for _, s := range rawSegments {
		s = strings.ReplaceAll(s, "/", "")
		if s == "" {
			continue
		}
		cleaned = append(cleaned, s)
	}
	if len(cleaned) == 0 {
		return Topic{}, ErrEmptyPath
	}
	return Topic{Segments: cleaned}, nil
}

// Parse splits path on '/' and canonicalizes the result.
func Parse(path string) (Topic, error) {
	return New(strings.Split(path, "/"))
}

// String returns the canonical '/'-joined representation.
func (t Topic) String() string {
	return strings.Join(t.Segments, "/")
}

// SubPaths returns the left-to-right non-empty prefixes of t: for
// a/b/c, that is [a, a/b, a/b/c]. A subscription to any of these
// receives publishes made to t.
func (t Topic) SubPaths() []string {
	out := make([]string, len(t.Segments))
	for i := range t.Segments {
		out[i] = strings.Join(t.Segments[:i+1], "/")
	}
	return out
}
