package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	codecontinue "github.com/Paranoid-AF/codecontinue"
	"github.com/Paranoid-AF/codecontinue/generate"
	"golang.org/x/term"
)

// termWriter converts \n to \r\n when f is a terminal, since raw mode
// turns off the kernel's translation. Redirected output passes through.
func termWriter(f *os.File) io.Writer {
	if term.IsTerminal(int(f.Fd())) {
		return &crlfWriter{w: f}
	}
	return f
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	replaced := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	_, err := c.w.Write(replaced)
	return len(p), err
}

// writeEntry writes one completion attempt as a TOML document.
func writeEntry(w io.Writer, now time.Time, req *codecontinue.Request, result *generate.CompleteResult) {
	fmt.Fprintf(w, "# %s\n\n", strings.Repeat("═", 60))

	fmt.Fprintln(w, "[request]")
	fmt.Fprintf(w, "timestamp = %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(w, "request_id = %d\n", req.RequestID)
	fmt.Fprintf(w, "doc = %s\n", tomlQuote(req.Doc))
	fmt.Fprintf(w, "language = %s\n", tomlQuote(req.Language))
	fmt.Fprintf(w, "line = %d\n", req.Line)
	fmt.Fprintf(w, "character = %d\n", req.Character)
	fmt.Fprintln(w)

	if result.Prompt != "" {
		win := result.Window
		fmt.Fprintln(w, "[window]")
		fmt.Fprintf(w, "start_line = %d\n", win.StartLine)
		fmt.Fprintf(w, "end_line = %d\n", win.EndLine)
		fmt.Fprintf(w, "indent = %s\n", tomlQuote(win.Indent))
		fmt.Fprintf(w, "prompt = %s\n", tomlQuote(result.Prompt))
		fmt.Fprintln(w)
	}

	writeResponse(w, result)
}

func writeResponse(w io.Writer, result *generate.CompleteResult) {
	resp := result.Response
	fmt.Fprintln(w, "[response]")
	fmt.Fprintf(w, "outcome = %s\n", tomlQuote(string(resp.Outcome)))
	if result.Raw != "" {
		fmt.Fprintf(w, "raw = %s\n", tomlQuote(result.Raw))
	}
	fmt.Fprintln(w)

	if s := resp.Suggestion; s != nil {
		fmt.Fprintln(w, "[suggestion]")
		fmt.Fprintf(w, "text = %s\n", tomlQuote(s.Text))
		fmt.Fprintf(w, "line = %d\n", s.Line)
		fmt.Fprintf(w, "character = %d\n", s.Character)
		fmt.Fprintln(w)
	}

	if e := resp.Error; e != nil {
		fmt.Fprintln(w, "[error]")
		fmt.Fprintf(w, "code = %s\n", tomlQuote(e.Code))
		fmt.Fprintf(w, "message = %s\n", tomlQuote(e.Message))
		fmt.Fprintln(w)
	}
}

// tomlQuote returns s as a TOML basic string.
func tomlQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
