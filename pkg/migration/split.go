package migration

import (
	"strings"
	"unicode"
)

// Split breaks a SQL script into statements on top-level semicolons.
//
// Semicolons inside string literals, quoted identifiers, comments and
// BEGIN…END trigger bodies do not end a statement. Comments are dropped and
// empty statements are skipped.
func Split(script string) []string {
	var (
		out     []string
		cur     strings.Builder
		word    strings.Builder
		depth   int  // BEGIN…END nesting inside CREATE TRIGGER
		trigger bool // current statement is a CREATE TRIGGER
	)

	flushWord := func() {
		if word.Len() == 0 {
			return
		}
		w := strings.ToUpper(word.String())
		word.Reset()
		switch w {
		case "TRIGGER":
			trigger = true
		case "BEGIN", "CASE":
			if trigger && (w == "BEGIN" || depth > 0) {
				depth++
			}
		case "END":
			if depth > 0 {
				depth--
			}
		}
	}
	emit := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			out = append(out, stmt)
		}
		cur.Reset()
		depth = 0
		trigger = false
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case c == '-' && next == '-':
			flushWord()
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			cur.WriteRune('\n')
			continue

		case c == '/' && next == '*':
			flushWord()
			i += 2
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				i++
			}
			i++ // skip '/'
			cur.WriteRune(' ')
			continue

		case c == '\'' || c == '"' || c == '`' || c == '[':
			flushWord()
			closer := c
			if c == '[' {
				closer = ']'
			}
			cur.WriteRune(c)
			for i++; i < len(runes); i++ {
				cur.WriteRune(runes[i])
				if runes[i] == closer {
					// A doubled quote is an escaped quote.
					if closer != ']' && i+1 < len(runes) && runes[i+1] == closer {
						i++
						cur.WriteRune(runes[i])
						continue
					}
					break
				}
			}
			continue

		case c == ';':
			flushWord()
			if depth > 0 {
				cur.WriteRune(c)
				continue
			}
			emit()
			continue
		}

		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' {
			word.WriteRune(c)
		} else {
			flushWord()
		}
		cur.WriteRune(c)
	}
	flushWord()
	emit()
	return out
}
