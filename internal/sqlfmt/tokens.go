package sqlfmt

import (
	"errors"
	"strings"
)

// ErrUnterminated is returned for a string, quoted identifier or block
// comment that never closes.
var ErrUnterminated = errors.New("sqlfmt: unterminated literal")

type tokenKind int

const (
	tkWord tokenKind = iota
	tkKeyword
	tkString
	tkQuoted
	tkNumber
	tkOperator
	tkOpen
	tkClose
	tkComma
	tkSemicolon
	tkDot
	tkLineComment
	tkBlockComment
)

type token struct {
	kind tokenKind
	text string
}

var keywords = toSet(`
ALL AND ANY AS ASC BETWEEN BY CASE CAST CROSS CURRENT_DATE CURRENT_TIMESTAMP DELETE
DESC DISTINCT ELSE END EXCEPT EXISTS FALSE FETCH FILTER FIRST FOR FROM FULL GROUP
HAVING ILIKE IN INNER INSERT INTERSECT INTERVAL INTO IS JOIN LATERAL LEFT LIKE LIMIT
NATURAL NOT NULL NULLS OFFSET ON OR ORDER OUTER OVER PARTITION RECURSIVE RETURNING
RIGHT ROWS SELECT SET SOME THEN TRUE UNION UPDATE USING VALUES WHEN WHERE WINDOW WITH
`)

// keywordInContext reports whether a keyword that doubles as a common column
// name is being used as a keyword. Outside the positions below such words
// keep their spelling.
func keywordInContext(word string, prev []token, rest string) bool {
	var last token
	if len(prev) > 0 {
		last = prev[len(prev)-1]
	}
	next := strings.TrimLeft(rest, " \t\r\n")
	switch word {
	case "FIRST":
		return last.kind == tkKeyword && (last.text == "NULLS" || last.text == "FETCH")
	case "ROWS":
		return last.kind == tkNumber || leadingWordIn(next, "BETWEEN", "ONLY", "UNBOUNDED", "CURRENT")
	case "FILTER":
		return last.kind == tkClose && strings.HasPrefix(next, "(")
	case "LEFT", "RIGHT":
		return strings.HasPrefix(next, "(") || leadingWordIn(next, "JOIN", "OUTER")
	}
	return true
}

func leadingWordIn(s string, words ...string) bool {
	j := 0
	for j < len(s) && isWordPart(s[j]) {
		j++
	}
	up := strings.ToUpper(s[:j])
	for _, w := range words {
		if up == w {
			return true
		}
	}
	return false
}

func toSet(s string) map[string]bool {
	m := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		m[w] = true
	}
	return m
}

// multi-character operators, longest first.
var operators = []string{"->>", "<=", ">=", "<>", "!=", "||", "::", "->", "=>"}

func isWordStart(c byte) bool {
	return c == '_' || c == '$' || c == '@' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isWordPart(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			end := strings.IndexByte(s[i:], '\n')
			if end < 0 {
				end = len(s) - i
			}
			toks = append(toks, token{tkLineComment, strings.TrimRight(s[i:i+end], " \t\r")})
			i += end

		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return nil, ErrUnterminated
			}
			toks = append(toks, token{tkBlockComment, s[i : i+end+4]})
			i += end + 4

		case c == '\'' || c == '"' || c == '`':
			j, err := closeQuote(s, i)
			if err != nil {
				return nil, err
			}
			kind := tkQuoted
			if c == '\'' {
				kind = tkString
			}
			toks = append(toks, token{kind, s[i:j]})
			i = j

		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			j := i
			for j < len(s) && (isDigit(s[j]) || s[j] == '.' || s[j] == 'e' || s[j] == 'E') {
				j++
			}
			toks = append(toks, token{tkNumber, s[i:j]})
			i = j

		case isWordStart(c):
			j := i
			for j < len(s) && isWordPart(s[j]) {
				j++
			}
			word := s[i:j]
			if up := strings.ToUpper(word); keywords[up] && keywordInContext(up, toks, s[j:]) {
				toks = append(toks, token{tkKeyword, up})
			} else {
				toks = append(toks, token{tkWord, word})
			}
			i = j

		case c == '(':
			toks = append(toks, token{tkOpen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tkClose, ")"})
			i++
		case c == ',':
			toks = append(toks, token{tkComma, ","})
			i++
		case c == ';':
			toks = append(toks, token{tkSemicolon, ";"})
			i++
		case c == '.':
			toks = append(toks, token{tkDot, "."})
			i++

		default:
			op := string(c)
			for _, candidate := range operators {
				if strings.HasPrefix(s[i:], candidate) {
					op = candidate
					break
				}
			}
			toks = append(toks, token{tkOperator, op})
			i += len(op)
		}
	}
	return toks, nil
}

// closeQuote returns the index just past the quote that closes the literal
// opening at s[start]. A doubled quote character is an escaped quote.
func closeQuote(s string, start int) (int, error) {
	q := s[start]
	for j := start + 1; j < len(s); j++ {
		if s[j] != q {
			continue
		}
		if j+1 < len(s) && s[j+1] == q {
			j++
			continue
		}
		return j + 1, nil
	}
	return 0, ErrUnterminated
}
