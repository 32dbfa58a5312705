package clean

import "testing"

func TestCleanMarkdownFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"python fence", "```py\nprint(1)\n```", "print(1)"},
		{"bare fence", "```\nx := 1\n```", "x := 1"},
		{"language with symbols", "```c++\nint x;\n```", "int x;"},
		{"leading whitespace before fence", "\n  ```go\nreturn nil\n```\n", "return nil"},
		{"only opening fence", "```js\nfoo()", "foo()"},
		{"only closing fence", "foo()\n```", "foo()"},
		{"no fence", "  return x\n", "return x"},
		{"fence alone", "```", ""},
		{"inner fences kept", "```md\na\n```\nb\n```", "a\n```\nb"},
		{"end of text token", "foo()[END_OF_TEXT]", "foo()"},
		{"inst tokens", "[INST]bar()[/INST]", "bar()"},
		{"endoftext marker", "baz()<|endoftext|>", "baz()"},
		{"end marker", "qux()<|end|>\n", "qux()"},
		{"fence and tokens", "```python\nreturn 1\n```[END_OF_TEXT]", "return 1"},
		{"crlf fence", "```py\r\nprint(1)\r\n```", "print(1)"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanMarkdownFences(tt.input)
			if got != tt.want {
				t.Errorf("CleanMarkdownFences(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanMarkdownFencesKeepsBodyIndent(t *testing.T) {
	got := CleanMarkdownFences("```py\n    if x:\n        y()\n```")
	// Outer whitespace is trimmed, so only the first line loses its indent.
	want := "if x:\n        y()"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStripCommonIndent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"shared indent", "  a\n  b\n", "a\nb\n"},
		{"unindented line", "a\n  b\n", "a\n  b\n"},
		{"uneven indent", "    a\n  b\n      c", "  a\nb\n    c"},
		{"blank lines untouched", "    a\n\n  \n    b", "a\n\n  \nb"},
		{"tabs", "\t\tx\n\ty", "\tx\ny"},
		{"all blank", "  \n\t\n", "  \n\t\n"},
		{"single line", "   x", "x"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripCommonIndent(tt.input)
			if got != tt.want {
				t.Errorf("StripCommonIndent(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeIndent(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		target string
		want   string
	}{
		{"strip then prefix", "  a\n  b", "    ", "    a\n    b"},
		{"unindented line keeps relative indent", "  a\nb", "    ", "      a\n    b"},
		{"no target only strips", "  a\n  b", "", "a\nb"},
		{"blank lines not prefixed", "  a\n\n  b", "\t", "\ta\n\n\tb"},
		{"empty", "", "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeIndent(tt.input, tt.target)
			if got != tt.want {
				t.Errorf("NormalizeIndent(%q, %q) = %q, want %q", tt.input, tt.target, got, tt.want)
			}
		})
	}
}

func TestLeadingIndent(t *testing.T) {
	if got := LeadingIndent("\t  x = 1"); got != "\t  " {
		t.Errorf("got %q", got)
	}
	if got := LeadingIndent("x"); got != "" {
		t.Errorf("got %q", got)
	}
	if got := LeadingIndent("   "); got != "   " {
		t.Errorf("got %q", got)
	}
}
