// Command codecontinue-repl is an interactive test bench for completions.
// Lines typed at the prompt build up an in-memory document; every Enter
// asks the engine for a continuation at the new cursor line and writes the
// attempt to stdout as TOML.
//
// Usage:
//
//	./codecontinue-repl -lang python             # TOML on screen
//	./codecontinue-repl -lang go > log.toml      # prompt on screen, TOML to file
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	codecontinue "github.com/Paranoid-AF/codecontinue"
	"github.com/Paranoid-AF/codecontinue/generate"
)

const (
	prompt = "> "
	docURI = "repl://buffer"
)

func main() {
	lang := flag.String("lang", "go", "language identifier of the buffer")
	verbose := flag.Bool("verbose", false, "log engine activity")
	flag.Parse()

	editor, err := NewEditor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer editor.Close()

	tty := editor.Tty()
	codecontinue.SetupLogging(&crlfWriter{w: tty}, *verbose)

	fmt.Fprintf(tty, "\033[2J\033[H")
	fmt.Fprintf(tty, "codecontinue repl (%s)\r\n", *lang)
	fmt.Fprintf(tty, "\r\ncommands:\r\n")
	fmt.Fprintf(tty, "  :accept       insert the last suggestion\r\n")
	fmt.Fprintf(tty, "  :show         print the buffer\r\n")
	fmt.Fprintf(tty, "  :lang <id>    change the buffer language\r\n")
	fmt.Fprintf(tty, "  :reset        clear the buffer\r\n")
	fmt.Fprintf(tty, "  :quit         exit\r\n\r\n")

	engine := generate.NewEngine()
	defer engine.Close()

	out := termWriter(os.Stdout)
	buf := NewBuffer()
	reqID := 0
	var last *codecontinue.Suggestion

	for {
		text, err := editor.ReadLine(prompt, buf.Current())
		if err == io.EOF || err == ErrInterrupt {
			break
		}
		if err != nil {
			fmt.Fprintf(tty, "read error: %v\r\n", err)
			break
		}

		switch cmd := strings.TrimSpace(text); {
		case cmd == ":quit" || cmd == ":q":
			return
		case cmd == ":show":
			fmt.Fprintf(tty, "%s\r\n\r\n", strings.ReplaceAll(buf.Text(), "\n", "\r\n"))
			continue
		case cmd == ":reset":
			buf.Reset()
			engine.CloseDocument(docURI)
			last = nil
			continue
		case strings.HasPrefix(cmd, ":lang "):
			*lang = strings.TrimSpace(strings.TrimPrefix(cmd, ":lang "))
			fmt.Fprintf(tty, "language: %s\r\n\r\n", *lang)
			continue
		case cmd == ":accept":
			if last == nil {
				fmt.Fprintf(tty, "(nothing to accept)\r\n")
				continue
			}
			buf.Insert(last.Text)
			engine.Accept(docURI)
			last = nil
			continue
		}

		// Enter inserts a line break plus the carried indentation.
		buf.Enter(text)
		if !engine.ShouldTrigger(&codecontinue.EditRequest{
			Type:     codecontinue.TypeEdit,
			Doc:      docURI,
			Language: *lang,
			Change:   "\n" + buf.Current(),
		}) {
			fmt.Fprintf(tty, "(no trigger)\r\n\r\n")
			continue
		}

		reqID++
		line, character := buf.Cursor()
		req := &codecontinue.Request{
			Type:      codecontinue.TypeComplete,
			RequestID: reqID,
			Doc:       docURI,
			Language:  *lang,
			Text:      buf.Text(),
			Line:      line,
			Character: character,
			Trigger:   codecontinue.TriggerAutomatic,
		}

		result := engine.CompleteVerbose(context.Background(), req)
		resp := result.Response
		last = resp.Suggestion

		switch {
		case resp.Error != nil:
			fmt.Fprintf(tty, "error [%s]: %s\r\n", resp.Error.Code, resp.Error.Message)
		case resp.Suggestion != nil:
			for _, l := range strings.Split(resp.Suggestion.Text, "\n") {
				fmt.Fprintf(tty, "  │ %s\r\n", l)
			}
		default:
			fmt.Fprintf(tty, "(%s)\r\n", resp.Outcome)
		}
		fmt.Fprintf(tty, "\r\n")

		writeEntry(out, time.Now(), req, result)
	}
}
