// Package redact masks credentials in document text before it is sent to
// the completion endpoint. Only values are masked; names and the
// surrounding formatting are kept so the model still sees the code shape.
package redact

import (
	"regexp"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Mask replaces a redacted value.
const Mask = "***"

// shellLanguages are editor language identifiers parsed as shell.
var shellLanguages = map[string]bool{
	"shellscript": true, "sh": true, "bash": true, "zsh": true,
}

// safeVars are environment variables whose values are never secret even
// though their names look like it.
var safeVars = map[string]bool{
	"HOME": true, "USER": true, "PWD": true, "OLDPWD": true,
	"SHELL": true, "PATH": true, "LANG": true, "TERM": true,
	"EDITOR": true, "PAGER": true, "HOSTNAME": true, "LOGNAME": true,
	"TMPDIR": true, "XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true,
	"XDG_RUNTIME_DIR": true, "SSH_AUTH_SOCK": true, "GPG_TTY": true,
	"KEYMAP": true, "KEYTIMEOUT": true,
}

// sensitiveParts mark variable names that usually hold credentials.
var sensitiveParts = []string{
	"KEY", "TOKEN", "SECRET", "PASSWORD", "PASSWD", "PASS", "CREDENTIAL", "AUTH",
}

// IsSensitiveName reports whether a variable called name likely holds a
// credential.
func IsSensitiveName(name string) bool {
	upper := strings.ToUpper(name)
	if safeVars[upper] {
		return false
	}
	for _, part := range sensitiveParts {
		if strings.Contains(upper, part) {
			return true
		}
	}
	return false
}

// Prompt redacts text written in language. Shell sources get AST-based
// assignment masking first; every language gets Secrets.
func Prompt(text, language string) string {
	if shellLanguages[strings.ToLower(language)] {
		text = Shell(text)
	}
	return Secrets(text)
}

type span struct{ start, end int }

// Shell masks the values of sensitive variable assignments in a shell
// source, e.g. `export API_KEY=abc` becomes `export API_KEY=***`. Sources
// that do not parse (typically cut off mid-statement) fall back to a
// regular expression.
func Shell(src string) string {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	prog, err := parser.Parse(strings.NewReader(src), "")
	if err != nil {
		return regexShell(src)
	}

	var spans []span
	syntax.Walk(prog, func(node syntax.Node) bool {
		n, ok := node.(*syntax.Assign)
		if !ok || n.Name == nil || n.Value == nil || !IsSensitiveName(n.Name.Value) {
			return true
		}
		spans = append(spans, span{int(n.Value.Pos().Offset()), int(n.Value.End().Offset())})
		return false
	})
	return replaceSpans(src, spans)
}

// replaceSpans substitutes Mask for every span, skipping overlaps.
func replaceSpans(src string, spans []span) string {
	if len(spans) == 0 {
		return src
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var sb strings.Builder
	sb.Grow(len(src))
	last := 0
	for _, s := range spans {
		if s.start < last || s.end > len(src) || s.start >= s.end {
			continue
		}
		sb.WriteString(src[last:s.start])
		sb.WriteString(Mask)
		last = s.end
	}
	sb.WriteString(src[last:])
	return sb.String()
}

var reShellAssign = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)=("[^"\n]*"|'[^'\n]*'|[^\s;&|)]+)`)

// regexShell is the fallback for sources that fail AST parsing.
func regexShell(src string) string {
	return reShellAssign.ReplaceAllStringFunc(src, func(m string) string {
		name := reShellAssign.FindStringSubmatch(m)[1]
		if !IsSensitiveName(name) {
			return m
		}
		return name + "=" + Mask
	})
}

var (
	// Well-known credential formats, masked wherever they appear.
	reTokens = []*regexp.Regexp{
		regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----(?:[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----|[\s\S]*$)`),
		regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}`),
		regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}`),
		regexp.MustCompile(`\bxox[abprs]-[A-Za-z0-9-]{10,}`),
	}
	// A quoted string literal assigned to a name that ends in a credential
	// word, in the assignment styles of common languages and config formats.
	// token_type or secret_santa do not end in one and are left alone.
	reKeyValue = regexp.MustCompile(`(?i)(\b(?:[\w.-]*[_.-])?(?:api_?key|access_?key|secret(?:_?key)?|token|passw(?:or)?d|credentials?)["']?\s*(?::=|=>|[:=])\s*)("[^"\n]+"|'[^'\n]+')`)
)

// Secrets masks well-known token formats and quoted literals assigned to
// credential-looking names.
func Secrets(text string) string {
	for _, re := range reTokens {
		text = re.ReplaceAllString(text, "[REDACTED]")
	}
	return reKeyValue.ReplaceAllStringFunc(text, func(m string) string {
		parts := reKeyValue.FindStringSubmatch(m)
		quote := parts[2][:1]
		return parts[1] + quote + Mask + quote
	})
}
