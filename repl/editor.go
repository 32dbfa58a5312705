package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// ErrInterrupt is returned when the user presses Ctrl-C.
var ErrInterrupt = errors.New("interrupted")

// Editor is a single-line editor over /dev/tty, so it keeps working when
// stdout is redirected to a file.
type Editor struct {
	tty      *os.File
	oldState *term.State
	buf      []byte
	pos      int // byte offset into buf
}

// NewEditor opens /dev/tty and switches it to raw mode.
func NewEditor() (*Editor, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/tty: %w", err)
	}

	old, err := term.MakeRaw(int(tty.Fd()))
	if err != nil {
		tty.Close()
		return nil, fmt.Errorf("raw mode: %w", err)
	}

	return &Editor{tty: tty, oldState: old}, nil
}

// Close restores the terminal and closes the tty.
func (e *Editor) Close() {
	term.Restore(int(e.tty.Fd()), e.oldState)
	e.tty.Close()
}

// Tty returns the terminal for prompts and status lines.
func (e *Editor) Tty() *os.File {
	return e.tty
}

// ReadLine shows prompt, pre-fills the line with initial and reads until
// Enter. Tab inserts a literal tab so indentation can be typed. It returns
// io.EOF on Ctrl-D over an empty line and ErrInterrupt on Ctrl-C.
func (e *Editor) ReadLine(prompt, initial string) (string, error) {
	e.buf = append(e.buf[:0], initial...)
	e.pos = len(e.buf)
	e.redraw(prompt)

	var esc [3]byte

	for {
		var b [1]byte
		if _, err := e.tty.Read(b[:]); err != nil {
			return "", err
		}

		switch b[0] {
		case 3: // Ctrl-C
			io.WriteString(e.tty, "\r\n")
			return "", ErrInterrupt

		case 4: // Ctrl-D
			if len(e.buf) == 0 {
				io.WriteString(e.tty, "\r\n")
				return "", io.EOF
			}

		case 13, 10:
			io.WriteString(e.tty, "\r\n")
			return string(e.buf), nil

		case 127, 8: // Backspace, Ctrl-H
			if e.pos > 0 {
				size := prevRuneLen(e.buf, e.pos)
				e.buf = append(e.buf[:e.pos-size], e.buf[e.pos:]...)
				e.pos -= size
			}

		case 1: // Ctrl-A
			e.pos = 0

		case 5: // Ctrl-E
			e.pos = len(e.buf)

		case 21: // Ctrl-U
			e.buf = e.buf[:0]
			e.pos = 0

		case 9:
			e.insert([]byte{'\t'})

		case 27:
			if n, _ := e.tty.Read(esc[:1]); n == 0 || esc[0] != '[' {
				continue
			}
			if n, _ := e.tty.Read(esc[1:2]); n == 0 {
				continue
			}
			switch esc[1] {
			case 'D':
				if e.pos > 0 {
					e.pos -= prevRuneLen(e.buf, e.pos)
				}
			case 'C':
				if e.pos < len(e.buf) {
					_, size := utf8.DecodeRune(e.buf[e.pos:])
					e.pos += size
				}
			case 'H':
				e.pos = 0
			case 'F':
				e.pos = len(e.buf)
			case '3': // Delete, \x1b[3~
				e.tty.Read(esc[2:3])
				if e.pos < len(e.buf) {
					_, size := utf8.DecodeRune(e.buf[e.pos:])
					e.buf = append(e.buf[:e.pos], e.buf[e.pos+size:]...)
				}
			}

		default:
			if b[0] < 32 {
				break
			}
			ch := []byte{b[0]}
			if extra := utf8SeqLen(b[0]) - 1; extra > 0 {
				tmp := make([]byte, extra)
				io.ReadFull(e.tty, tmp)
				ch = append(ch, tmp...)
			}
			e.insert(ch)
		}

		e.redraw(prompt)
	}
}

func (e *Editor) insert(ch []byte) {
	tail := append([]byte(nil), e.buf[e.pos:]...)
	e.buf = append(append(e.buf[:e.pos], ch...), tail...)
	e.pos += len(ch)
}

// redraw repaints the prompt and buffer, then moves the terminal cursor
// back to the editing position. Tabs are shown as single spaces so the
// column arithmetic stays rune based.
func (e *Editor) redraw(prompt string) {
	shown := strings.ReplaceAll(string(e.buf), "\t", " ")
	fmt.Fprintf(e.tty, "\r\x1b[K%s%s", prompt, shown)
	if tail := utf8.RuneCount(e.buf[e.pos:]); tail > 0 {
		fmt.Fprintf(e.tty, "\x1b[%dD", tail)
	}
}

// prevRuneLen returns the byte size of the rune ending at pos.
func prevRuneLen(buf []byte, pos int) int {
	_, size := utf8.DecodeLastRune(buf[:pos])
	return size
}

// utf8SeqLen returns the byte length of a UTF-8 sequence from its lead byte.
func utf8SeqLen(lead byte) int {
	switch {
	case lead < 0xC0:
		return 1
	case lead < 0xE0:
		return 2
	case lead < 0xF0:
		return 3
	default:
		return 4
	}
}
