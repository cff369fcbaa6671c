package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStatementNotAllowed is returned for anything but a single SELECT,
// WITH or VALUES statement. PRAGMA, ATTACH and every write are refused
// before they reach the database.
var ErrStatementNotAllowed = errors.New("statement not allowed")

var readOnlyKeywords = map[string]bool{
	"SELECT": true,
	"WITH":   true,
	"VALUES": true,
}

func checkReadOnly(query string) error {
	code := strings.TrimSpace(stripLiterals(query))
	code = strings.TrimRight(code, "; \t\r\n")
	if code == "" {
		return fmt.Errorf("%w: empty statement", ErrStatementNotAllowed)
	}
	if strings.Contains(code, ";") {
		return fmt.Errorf("%w: multiple statements", ErrStatementNotAllowed)
	}

	keyword := strings.TrimLeft(code, "( \t\r\n")
	if i := strings.IndexFunc(keyword, endsKeyword); i >= 0 {
		keyword = keyword[:i]
	}
	keyword = strings.ToUpper(keyword)
	if !readOnlyKeywords[keyword] {
		return fmt.Errorf("%w: %s", ErrStatementNotAllowed, keyword)
	}
	return nil
}

// stripLiterals blanks out string literals, quoted identifiers and
// comments so that only statement structure is left.
func stripLiterals(query string) string {
	var b strings.Builder
	b.Grow(len(query))

	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			end := strings.IndexByte(query[i+1:], ch)
			if end < 0 {
				return b.String()
			}
			i += end + 1
			b.WriteByte(' ')
		case ch == '[':
			end := strings.IndexByte(query[i+1:], ']')
			if end < 0 {
				return b.String()
			}
			i += end + 1
			b.WriteByte(' ')
		case ch == '-' && i+1 < len(query) && query[i+1] == '-':
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				return b.String()
			}
			i += end
			b.WriteByte(' ')
		case ch == '/' && i+1 < len(query) && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
			b.WriteByte(' ')
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func endsKeyword(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
}
