package model

import (
	"net/http"
	"strings"
)

// Headers is a read-only, case-insensitive view over response headers.
type Headers struct {
	h http.Header
}

// NewHeaders copies h so later changes to the response do not leak into the view.
func NewHeaders(h http.Header) Headers {
	c := make(http.Header, len(h))
	for k, v := range h {
		c[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	return Headers{h: c}
}

// HeadersFromMap builds Headers from loosely typed maps such as devtools protocol events.
func HeadersFromMap(m map[string]any) Headers {
	h := make(http.Header, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			// devtools joins repeated headers with a newline
			for _, part := range strings.Split(val, "\n") {
				h.Add(k, part)
			}
		case []string:
			for _, part := range val {
				h.Add(k, part)
			}
		}
	}
	return Headers{h: h}
}

// Get returns all values of the header joined with ", ".
func (h Headers) Get(name string) string {
	return strings.Join(h.h.Values(name), ", ")
}

// Has reports whether the header is present with a non-blank value.
func (h Headers) Has(name string) bool {
	return strings.TrimSpace(h.Get(name)) != ""
}

// Contains reports whether the header value contains substr, ignoring case.
func (h Headers) Contains(name, substr string) bool {
	return strings.Contains(strings.ToLower(h.Get(name)), strings.ToLower(substr))
}

// Len returns the number of distinct header names.
func (h Headers) Len() int {
	return len(h.h)
}

// Map returns a copy keyed by lower-case header name.
func (h Headers) Map() map[string]string {
	m := make(map[string]string, len(h.h))
	for k := range h.h {
		m[strings.ToLower(k)] = h.Get(k)
	}
	return m
}
