package generate

import (
	"strings"

	"github.com/Paranoid-AF/codecontinue/clean"
)

// promptPrefix introduces the code the model is asked to continue.
const promptPrefix = "Continue the following code:\n"

// Window is the span of a document around the cursor that is sent to the
// model. Lines are zero-based; EndLine is exclusive.
type Window struct {
	StartLine int
	EndLine   int
	// Before is the window text up to the cursor.
	Before string
	// After is the window text from the cursor on.
	After string
	// Indent is the leading whitespace of the cursor line.
	Indent string
}

// Text returns the whole window.
func (w Window) Text() string {
	return w.Before + w.After
}

// BuildWindow cuts a window of about maxLines lines centred on the cursor.
// line and character are clamped to the document; character counts runes.
// The cursor line is always part of the window.
func BuildWindow(text string, line, character, maxLines int) Window {
	lines := strings.Split(text, "\n")

	if line < 0 {
		line = 0
	}
	if line >= len(lines) {
		line = len(lines) - 1
	}

	half := maxLines / 2
	start := max(0, line-half)
	end := min(len(lines), line+half)
	if end <= line {
		end = line + 1
	}

	cur := []rune(lines[line])
	if character < 0 {
		character = 0
	}
	if character > len(cur) {
		character = len(cur)
	}
	col := len(string(cur[:character]))

	window := strings.Join(lines[start:end], "\n")
	if end < len(lines) {
		window += "\n"
	}

	offset := col
	for i := start; i < line; i++ {
		offset += len(lines[i]) + 1
	}

	return Window{
		StartLine: start,
		EndLine:   end,
		Before:    window[:offset],
		After:     window[offset:],
		Indent:    clean.LeadingIndent(lines[line]),
	}
}

// BuildPrompt returns the user message for a window.
func BuildPrompt(w Window) string {
	return promptPrefix + w.Before
}
