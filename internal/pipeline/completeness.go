package pipeline

import (
	"strings"
	"unicode"
)

// Terminator ends a complete statement.
const Terminator = ";"

// danglingKeywords are clause introducers and connectives that cannot end a
// statement.
var danglingKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AND": true, "OR": true, "NOT": true,
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "FULL": true, "OUTER": true,
	"CROSS": true, "NATURAL": true, "ON": true, "USING": true, "GROUP": true, "ORDER": true,
	"BY": true, "HAVING": true, "LIMIT": true, "OFFSET": true, "UNION": true,
	"INTERSECT": true, "EXCEPT": true, "ALL": true, "DISTINCT": true, "AS": true, "IN": true,
	"IS": true, "LIKE": true, "ILIKE": true, "BETWEEN": true, "CASE": true, "WHEN": true,
	"THEN": true, "ELSE": true, "WITH": true, "RECURSIVE": true, "SET": true,
	"VALUES": true, "INTO": true, "UPDATE": true, "INSERT": true, "DELETE": true,
	"RETURNING": true, "OVER": true, "PARTITION": true, "WINDOW": true, "EXISTS": true,
	"ANY": true, "SOME": true, "FILTER": true,
}

// danglingOperators are checked longest first so "<=" wins over "=".
var danglingOperators = []string{
	"<=", ">=", "<>", "!=", "||", "::",
	"=", "<", ">", "+", "-", "/", "%", ",", "(", ".",
}

// IsComplete reports whether sql looks like one whole statement: non-blank,
// terminated, no dangling tail, balanced parentheses. Comments are ignored, so
// a terminator inside a comment does not count.
func IsComplete(sql string) bool {
	code, _ := maskComments(sql)
	t := strings.TrimSpace(code)
	if !strings.HasSuffix(t, Terminator) || strings.TrimSpace(strings.TrimRight(t, Terminator)) == "" {
		return false
	}
	if _, dangling := DanglingTail(t); dangling {
		return false
	}
	return ParenDepth(t) == 0
}

// DanglingTail reports whether sql, ignoring comments and trailing
// terminators, ends in a keyword or operator that needs something after it.
// It also returns the offending tail.
func DanglingTail(sql string) (string, bool) {
	code, _ := maskComments(sql)
	t := strings.TrimRight(strings.TrimSpace(code), Terminator+" \t\r\n")
	if t == "" {
		return "", false
	}

	for _, op := range danglingOperators {
		if strings.HasSuffix(t, op) {
			return op, true
		}
	}

	word := lastWord(t)
	if word == "" {
		return "", false
	}
	if strings.HasSuffix(word, "_") {
		return word, true
	}
	if danglingKeywords[strings.ToUpper(word)] {
		return word, true
	}
	return "", false
}

func lastWord(s string) string {
	end := len(s)
	start := end
	for start > 0 {
		r := rune(s[start-1])
		if r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			start--
			continue
		}
		break
	}
	return s[start:end]
}

// ParenDepth returns open minus close parentheses outside string literals,
// quoted identifiers and comments.
func ParenDepth(sql string) int {
	code, _ := maskComments(sql)
	depth := 0
	var quote byte
	for i := 0; i < len(code); i++ {
		c := code[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
		}
	}
	return depth
}

// maskComments blanks out line and block comments that sit outside quotes.
// end is the offset just past the last byte of code, so sql[end:] holds only
// trailing comments and whitespace. An unclosed block comment runs to the end.
func maskComments(sql string) (masked string, end int) {
	b := []byte(sql)
	var quote byte
	for i := 0; i < len(b); i++ {
		c := b[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			end = i + 1
			continue
		}
		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
			end = i + 1
		case c == '-' && i+1 < len(b) && b[i+1] == '-':
			for ; i < len(b) && b[i] != '\n'; i++ {
				b[i] = ' '
			}
		case c == '/' && i+1 < len(b) && b[i+1] == '*':
			stop := len(b)
			if j := strings.Index(sql[i+2:], "*/"); j >= 0 {
				stop = i + 2 + j + 2
			}
			for ; i < stop; i++ {
				b[i] = ' '
			}
			i--
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
		default:
			end = i + 1
		}
	}
	return string(b), end
}

// normalizeTerminator appends a terminator to a non-blank statement that
// lacks one, unless the provider said it stopped at the length limit. The
// terminator goes before any trailing comment.
func normalizeTerminator(sql string, truncated bool) string {
	t := strings.TrimSpace(sql)
	if t == "" || truncated {
		return t
	}
	_, end := maskComments(t)
	if end == 0 || strings.HasSuffix(t[:end], Terminator) {
		return t
	}
	return t[:end] + Terminator + t[end:]
}
