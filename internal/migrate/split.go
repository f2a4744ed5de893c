package migrate

import "strings"

// SplitStatements splits a SQL script on top-level semicolons.
// Semicolons inside quotes, dollar-quoted bodies and comments are ignored.
// Empty and comment-only statements are dropped.
func SplitStatements(sql string) []string {
	var (
		out    []string
		buf    strings.Builder
		dollar string
	)

	flush := func() {
		stmt := strings.TrimSpace(buf.String())
		buf.Reset()
		if stmt != "" && !isCommentOnly(stmt) {
			out = append(out, stmt)
		}
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]

		if dollar != "" {
			if strings.HasPrefix(sql[i:], dollar) {
				buf.WriteString(dollar)
				i += len(dollar) - 1
				dollar = ""
				continue
			}
			buf.WriteByte(c)
			continue
		}

		switch {
		case c == '\'' || c == '"':
			end := closingQuote(sql, i, c)
			buf.WriteString(sql[i:end])
			i = end - 1
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				end = len(sql) - i
			}
			buf.WriteString(sql[i : i+end])
			i += end - 1
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				buf.WriteString(sql[i:])
				i = len(sql)
				continue
			}
			buf.WriteString(sql[i : i+end+4])
			i += end + 3
		case c == '$':
			if tag, ok := dollarTag(sql[i:]); ok {
				dollar = tag
				buf.WriteString(tag)
				i += len(tag) - 1
				continue
			}
			buf.WriteByte(c)
		case c == ';':
			flush()
		default:
			buf.WriteByte(c)
		}
	}
	flush()

	return out
}

// closingQuote returns the index just past the quote that closes sql[start].
// Doubled quotes are treated as escapes.
func closingQuote(sql string, start int, q byte) int {
	for i := start + 1; i < len(sql); i++ {
		if sql[i] != q {
			continue
		}
		if i+1 < len(sql) && sql[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(sql)
}

// dollarTag matches $$ or $tag$ at the start of s.
func dollarTag(s string) (string, bool) {
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == '$' {
			return s[:i+1], true
		}
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || (i > 1 && c >= '0' && c <= '9')) {
			return "", false
		}
	}
	return "", false
}

func isCommentOnly(stmt string) bool {
	rest := stmt
	for {
		rest = strings.TrimSpace(rest)
		switch {
		case rest == "":
			return true
		case strings.HasPrefix(rest, "--"):
			nl := strings.IndexByte(rest, '\n')
			if nl < 0 {
				return true
			}
			rest = rest[nl+1:]
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest, "*/")
			if end < 0 {
				return true
			}
			rest = rest[end+2:]
		default:
			return false
		}
	}
}
