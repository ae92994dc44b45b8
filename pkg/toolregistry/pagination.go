package toolregistry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// maybePaginate stores oversized results and returns the first page plus a
// truncation notice, matching registry.py's DEFAULT_MAX_RESULT_CHARS
// behavior (there measured in characters; here in bytes, since Go strings
// are byte-indexed and the corpus's other size limits are byte-based too).
func (r *Registry) maybePaginate(result string) string {
	if len(result) <= r.maxInlineBytes {
		return result
	}

	id := newResultID()
	r.pagesMu.Lock()
	r.pages[id] = result
	r.pagesMu.Unlock()

	pageOne, total := r.page(result, 1)
	return fmt.Sprintf(
		"%s\n\n[truncated; %d bytes total across %d pages; call read_more(result_id=%q, page=2) for more]",
		pageOne, len(result), total, id,
	)
}

// page returns the 1-indexed page's text and the total page count. Page
// boundaries are computed once by walking forward from the start of full,
// widening only the end of each page to the next rune boundary; the next
// page always starts exactly where the previous one ended, so no byte
// (and no multi-byte rune) is ever emitted on two pages.
func (r *Registry) page(full string, n int) (string, int) {
	if n < 1 {
		n = 1
	}
	boundaries := pageBoundaries(full, r.pageBytes)
	total := len(boundaries) - 1
	if n > total {
		return "", total
	}
	return full[boundaries[n-1]:boundaries[n]], total
}

// pageBoundaries returns the byte offsets [0, ..., len(full)] delimiting
// each page, computed by advancing pageBytes at a time and pushing an end
// offset forward past any UTF-8 continuation bytes it would otherwise
// split. Always has at least two entries (an empty result is one page).
func pageBoundaries(full string, pageBytes int) []int {
	if pageBytes < 1 {
		pageBytes = 1
	}
	boundaries := []int{0}
	start := 0
	for start < len(full) {
		end := start + pageBytes
		if end >= len(full) {
			end = len(full)
		} else {
			for end < len(full) && isUTF8Continuation(full[end]) {
				end++
			}
		}
		boundaries = append(boundaries, end)
		start = end
	}
	if len(boundaries) == 1 {
		boundaries = append(boundaries, 0)
	}
	return boundaries
}

func isUTF8Continuation(b byte) bool {
	return b&0xC0 == 0x80
}

func newResultID() string {
	return uuid.New().String()[:8]
}

// PaginatedResultCount reports how many results are currently cached for
// read_more, for diagnostics/tests (supplement 4.4, registry.py's
// get_paginated_result_count).
func (r *Registry) PaginatedResultCount() int {
	r.pagesMu.Lock()
	defer r.pagesMu.Unlock()
	return len(r.pages)
}

// ClearPaginatedResults drops all cached oversized results. Registry.py
// exposes this for tests; nothing in this module calls it.
func (r *Registry) ClearPaginatedResults() {
	r.pagesMu.Lock()
	defer r.pagesMu.Unlock()
	r.pages = make(map[string]string)
}

// registerReadMore installs the built-in read_more tool. Its cache is keyed
// per-Registry, so pagination survives conversation compaction: the cache
// lives outside the Conversation entirely (SPEC_FULL.md open-question
// decision, see DESIGN.md).
func (r *Registry) registerReadMore() {
	r.tools["read_more"] = &Tool{
		Name:        "read_more",
		Description: "Fetch a page of a previously truncated tool result by its result_id.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"result_id": map[string]any{"type": "string"},
				"page":      map[string]any{"type": "integer", "minimum": 1},
			},
			"required": []string{"result_id", "page"},
		},
		Handler:   HandlerFunc(r.handleReadMore),
		FileParam: "",
		Source:    "native",
	}
	r.order = append([]string{"read_more"}, r.order...)
}

func (r *Registry) handleReadMore(_ context.Context, args map[string]any) (string, error) {
	id, _ := args["result_id"].(string)
	if id == "" {
		return "", fmt.Errorf("read_more: result_id is required")
	}
	pageArg, _ := args["page"].(float64)
	n := int(pageArg)
	if n < 1 {
		n = 1
	}

	r.pagesMu.Lock()
	full, ok := r.pages[id]
	r.pagesMu.Unlock()
	if !ok {
		return "", fmt.Errorf("read_more: unknown result_id %q", id)
	}

	text, total := r.page(full, n)
	if n > total {
		return fmt.Sprintf("[no such page; result has %d pages]", total), nil
	}
	if n < total {
		return fmt.Sprintf("%s\n\n[page %d/%d; call read_more(result_id=%q, page=%d) for more]", text, n, total, id, n+1), nil
	}
	return fmt.Sprintf("%s\n\n[page %d/%d; end of result]", text, n, total), nil
}
