package main

import (
	"strings"

	"github.com/Paranoid-AF/codecontinue/clean"
)

// Buffer is the in-memory document the REPL completes against.
// The cursor always sits on the last line.
type Buffer struct {
	lines []string
}

// NewBuffer returns a buffer holding a single empty line.
func NewBuffer() *Buffer {
	return &Buffer{lines: []string{""}}
}

// Enter replaces the current line with text and opens a new line carrying
// the same indentation, the way an editor's auto-indent would.
func (b *Buffer) Enter(text string) {
	b.lines[len(b.lines)-1] = text
	b.lines = append(b.lines, clean.LeadingIndent(text))
}

// Insert writes a multi-line suggestion at the cursor. Continuation lines
// take the cursor line's indentation, and the cursor ends on a fresh line.
func (b *Buffer) Insert(suggestion string) {
	last := len(b.lines) - 1
	indent := clean.LeadingIndent(b.lines[last])
	parts := strings.Split(clean.NormalizeIndent(suggestion, indent), "\n")

	b.lines[last] += strings.TrimPrefix(parts[0], indent)
	b.lines = append(b.lines, parts[1:]...)
	b.lines = append(b.lines, clean.LeadingIndent(b.lines[len(b.lines)-1]))
}

// Reset drops all content.
func (b *Buffer) Reset() {
	b.lines = []string{""}
}

// Text returns the document content.
func (b *Buffer) Text() string {
	return strings.Join(b.lines, "\n")
}

// Cursor returns the zero-based line and rune column of the cursor.
func (b *Buffer) Cursor() (line, character int) {
	last := len(b.lines) - 1
	return last, len([]rune(b.lines[last]))
}

// Current returns the line under the cursor.
func (b *Buffer) Current() string {
	return b.lines[len(b.lines)-1]
}

// Lines returns the number of lines, counting the cursor line.
func (b *Buffer) Lines() int {
	return len(b.lines)
}
