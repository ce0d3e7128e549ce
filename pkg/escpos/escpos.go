// Package escpos builds ESC/POS byte streams for thermal receipt printers.
//
//	b := escpos.New(32).
//	    Reset().Align(escpos.Center).Size(escpos.Large).Bold(true).
//	    Line("SIMPLE POS").
//	    Size(escpos.Normal).Bold(false).Align(escpos.Left).
//	    Columns("2x", "Espresso", "3.00").
//	    Feed(3).Cut()
//	printer.PrintRaw(ctx, "tcp:10.0.0.9:9100", b.Bytes())
package escpos

import (
	"bytes"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	esc = 0x1B
	gs  = 0x1D
)

// Alignment for Align.
type Alignment byte

const (
	Left   Alignment = 0x00
	Center Alignment = 0x01
	Right  Alignment = 0x02
)

// TextSize for Size. Large doubles width and height.
type TextSize byte

const (
	Normal TextSize = 0x00
	Large  TextSize = 0x11
)

// Builder accumulates commands and text. Text is written as UTF-8, which
// is what the UI has always sent.
type Builder struct {
	buf   bytes.Buffer
	width int
}

// New returns a Builder for a paper width of width characters (32 for 58 mm,
// 42 or 48 for 80 mm). Zero means 32.
func New(width int) *Builder {
	if width <= 0 {
		width = 32
	}
	return &Builder{width: width}
}

// Width reports the configured character width.
func (b *Builder) Width() int { return b.width }

// Reset emits ESC @.
func (b *Builder) Reset() *Builder { return b.raw(esc, '@') }

// Bold emits ESC E n.
func (b *Builder) Bold(on bool) *Builder {
	n := byte(0)
	if on {
		n = 1
	}
	return b.raw(esc, 'E', n)
}

// Align emits ESC a n.
func (b *Builder) Align(a Alignment) *Builder { return b.raw(esc, 'a', byte(a)) }

// Size emits GS ! n.
func (b *Builder) Size(s TextSize) *Builder { return b.raw(gs, '!', byte(s)) }

// Text writes s as is.
func (b *Builder) Text(s string) *Builder {
	b.buf.WriteString(s)
	return b
}

// Line writes s followed by a newline.
func (b *Builder) Line(s string) *Builder { return b.Text(s + "\n") }

// Rule writes a full-width line of ch.
func (b *Builder) Rule(ch rune) *Builder { return b.Line(strings.Repeat(string(ch), b.width)) }

// Feed writes n newlines.
func (b *Builder) Feed(n int) *Builder {
	if n > 0 {
		b.buf.WriteString(strings.Repeat("\n", n))
	}
	return b
}

// Cut emits GS V 0x41 0x00, a partial cut after feeding to the cutter.
func (b *Builder) Cut() *Builder { return b.raw(gs, 'V', 0x41, 0x00) }

// Columns writes a quantity / name / amount row. The first column takes 15%
// of the width, the last 30% right-aligned, the middle the rest; each is
// truncated to fit.
func (b *Builder) Columns(left, middle, right string) *Builder {
	c1 := b.width * 15 / 100
	c3 := b.width * 30 / 100
	c2 := b.width - c1 - c3 - 2
	if c2 < 1 {
		c2 = 1
	}
	return b.Line(padRight(left, c1) + " " + padRight(middle, c2) + " " + padLeft(right, c3))
}

// Pair writes label on the left and value on the right of one line.
func (b *Builder) Pair(label, value string) *Builder {
	gap := b.width - runes(label) - runes(value)
	if gap < 1 {
		return b.Line(label + " " + value)
	}
	return b.Line(label + strings.Repeat(" ", gap) + value)
}

// Bytes returns the accumulated stream.
func (b *Builder) Bytes() []byte { return bytes.Clone(b.buf.Bytes()) }

// Len reports the stream length in bytes.
func (b *Builder) Len() int { return b.buf.Len() }

func (b *Builder) raw(p ...byte) *Builder {
	b.buf.Write(p)
	return b
}

// TestPage is the page printed by `simplepos print --test` and the
// print_test command.
func TestPage(width int, connection string, now time.Time) []byte {
	b := New(width)
	return b.
		Reset().
		Align(Center).Size(Large).Bold(true).
		Line("SIMPLE POS").
		Size(Normal).Bold(false).
		Line("Printer test").
		Rule('-').
		Align(Left).
		Pair("Printer", connection).
		Pair("Time", now.Format("2006-01-02 15:04")).
		Pair("Width", strconv.Itoa(b.Width())).
		Rule('-').
		Columns("Qty", "Item", "Total").
		Columns("2x", "Espresso", "3.00").
		Columns("1x", "Croissant with butter", "2.50").
		Rule('=').
		Bold(true).Pair("TOTAL", "5.50").Bold(false).
		Feed(3).
		Cut().
		Bytes()
}

func runes(s string) int { return utf8.RuneCountInString(s) }

func truncate(s string, n int) string {
	if runes(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func padRight(s string, n int) string {
	s = truncate(s, n)
	return s + strings.Repeat(" ", n-runes(s))
}

func padLeft(s string, n int) string {
	s = truncate(s, n)
	return strings.Repeat(" ", n-runes(s)) + s
}
