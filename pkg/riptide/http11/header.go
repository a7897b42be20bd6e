package http11

import "strings"

// Header is an ordered, case-insensitive set of response headers.
// Names keep the casing of the first Set; values are single strings
// since multi-value headers are not merged.
type Header struct {
	names  []string
	values []string
}

func (h *Header) index(name string) int {
	for i, n := range h.names {
		if strings.EqualFold(n, name) {
			return i
		}
	}
	return -1
}

// Set replaces the value for name, or appends it if absent.
// CR and LF are stripped from both name and value.
func (h *Header) Set(name, value string) {
	name = stripCRLF(name)
	value = stripCRLF(value)
	if i := h.index(name); i >= 0 {
		h.values[i] = value
		return
	}
	h.names = append(h.names, name)
	h.values = append(h.values, value)
}

// Get returns the value for name, or "" if absent.
func (h *Header) Get(name string) string {
	if i := h.index(name); i >= 0 {
		return h.values[i]
	}
	return ""
}

// Has reports whether name is present.
func (h *Header) Has(name string) bool {
	return h.index(name) >= 0
}

// Del removes name, preserving the order of the remaining headers.
func (h *Header) Del(name string) {
	i := h.index(name)
	if i < 0 {
		return
	}
	h.names = append(h.names[:i], h.names[i+1:]...)
	h.values = append(h.values[:i], h.values[i+1:]...)
}

// Len returns the number of headers.
func (h *Header) Len() int {
	return len(h.names)
}

// Reset clears all headers, keeping capacity.
func (h *Header) Reset() {
	h.names = h.names[:0]
	h.values = h.values[:0]
}

// VisitAll calls visitor for each header in insertion order.
// Iteration stops if visitor returns false.
func (h *Header) VisitAll(visitor func(name, value string) bool) {
	for i := range h.names {
		if !visitor(h.names[i], h.values[i]) {
			return
		}
	}
}

func stripCRLF(s string) string {
	if strings.IndexAny(s, "\r\n") < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return -1
		}
		return r
	}, s)
}
