// Package clean turns raw model output into text that can be inserted into
// a document. All functions are pure and total.
package clean

import (
	"regexp"
	"strings"
)

var (
	// One opening fence line at the very start: ``` plus an optional language tag.
	reOpenFence = regexp.MustCompile("^[ \\t\\r\\n]*```[\\w.+#-]*[ \\t]*(?:\\r?\\n|$)")
	// One closing fence line at the very end.
	reCloseFence = regexp.MustCompile("(?:\\r?\\n)?[ \\t]*```[ \\t\\r\\n]*$")
)

// sentinels are special tokens some models leak into their output.
var sentinels = strings.NewReplacer(
	"[END_OF_TEXT]", "",
	"[INST]", "",
	"[/INST]", "",
	"<|endoftext|>", "",
	"<|end|>", "",
)

// CleanMarkdownFences strips a leading and a trailing markdown code fence,
// removes sentinel tokens wherever they occur and trims surrounding whitespace.
// Sentinels go first so a fence followed by [END_OF_TEXT] still counts as trailing.
func CleanMarkdownFences(text string) string {
	if text == "" {
		return text
	}
	cleaned := sentinels.Replace(text)
	cleaned = reOpenFence.ReplaceAllString(cleaned, "")
	cleaned = reCloseFence.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// StripCommonIndent removes the smallest leading whitespace run shared by
// all non-blank lines. Blank lines are left untouched. If any non-blank line
// is unindented, or every line is blank, text is returned unchanged.
func StripCommonIndent(text string) string {
	if text == "" {
		return text
	}

	lines := strings.Split(text, "\n")

	minIndent := -1
	for _, line := range lines {
		if isBlank(line) {
			continue
		}
		n := len(LeadingIndent(line))
		if minIndent < 0 || n < minIndent {
			minIndent = n
		}
	}
	if minIndent <= 0 {
		return text
	}

	for i, line := range lines {
		if isBlank(line) {
			continue
		}
		lines[i] = line[minIndent:]
	}
	return strings.Join(lines, "\n")
}

// NormalizeIndent strips the common indent and then prefixes every
// non-blank line with targetIndent.
func NormalizeIndent(text, targetIndent string) string {
	stripped := StripCommonIndent(text)
	if targetIndent == "" {
		return stripped
	}

	lines := strings.Split(stripped, "\n")
	for i, line := range lines {
		if isBlank(line) {
			continue
		}
		lines[i] = targetIndent + line
	}
	return strings.Join(lines, "\n")
}

// LeadingIndent returns the run of spaces and tabs at the start of line.
func LeadingIndent(line string) string {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return line[:i]
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
