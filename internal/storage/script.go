package storage

import "strings"

// SplitScript splits a SQL script into statements.
//
// A semicolon ends a statement unless it is inside a quoted literal or
// identifier, a "--" comment, or a CREATE TRIGGER body (BEGIN ... END) or CASE
// expression. Comment-only fragments are dropped and leading comment lines are
// trimmed from each statement.
func SplitScript(src string) []string {
	var (
		out     []string
		b       strings.Builder
		depth   int
		trigger bool
	)
	flush := func() {
		if s := trimLeadingComments(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
		depth, trigger = 0, false
	}

	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\'' || c == '"':
			j := quotedEnd(src, i)
			b.WriteString(src[i:j])
			i = j
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			j := strings.IndexByte(src[i:], '\n')
			if j < 0 {
				j = len(src) - i
			}
			b.WriteString(src[i : i+j])
			i += j
		case isWordByte(c):
			j := i
			for j < len(src) && isWordByte(src[j]) {
				j++
			}
			switch strings.ToUpper(src[i:j]) {
			case "TRIGGER":
				if depth == 0 {
					trigger = true
				}
			case "BEGIN":
				if trigger {
					depth++
				}
			case "CASE":
				depth++
			case "END":
				if depth > 0 {
					depth--
				}
			}
			b.WriteString(src[i:j])
			i = j
		case c == ';':
			b.WriteByte(c)
			i++
			if depth == 0 {
				flush()
			}
		default:
			b.WriteByte(c)
			i++
		}
	}
	flush()
	return out
}

// quotedEnd returns the index just past the literal starting at i. A doubled
// quote is an escaped quote. An unterminated literal runs to the end.
func quotedEnd(src string, i int) int {
	q := src[i]
	j := i + 1
	for j < len(src) {
		if src[j] != q {
			j++
			continue
		}
		if j+1 < len(src) && src[j+1] == q {
			j += 2
			continue
		}
		return j + 1
	}
	return len(src)
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func trimLeadingComments(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasPrefix(s, "--") {
		nl := strings.IndexByte(s, '\n')
		if nl < 0 {
			return ""
		}
		s = strings.TrimSpace(s[nl+1:])
	}
	return s
}
