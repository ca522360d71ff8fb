// Package sqlfmt is a best-effort cosmetic SQL formatter. It uppercases
// reserved words, starts each top-level clause on its own line, indents
// AND/OR continuations and subqueries, and normalises operator spacing. It
// does not parse or validate SQL.
package sqlfmt

import "strings"

// Formatter formats SQL text. The zero value indents with two spaces.
type Formatter struct {
	Indent string
}

func New() *Formatter { return &Formatter{Indent: "  "} }

// Format returns the formatted statement(s). Text that cannot be tokenized
// is reported as an error so callers can fall back to the original.
func (f *Formatter) Format(sql string) (string, error) {
	toks, err := tokenize(sql)
	if err != nil {
		return "", err
	}
	indent := f.Indent
	if indent == "" {
		indent = "  "
	}
	p := &printer{indent: indent}
	p.run(toks)
	return p.String(), nil
}

var joinModifiers = toSet("LEFT RIGHT FULL INNER CROSS NATURAL OUTER")

// noSpaceBeforeParen are keywords that read as function calls.
var noSpaceBeforeParen = toSet("LEFT RIGHT CAST")

type printer struct {
	indent string
	lines  []string
	cur    strings.Builder

	// content is true once the current line has more than indentation.
	content bool
	depth   int
	between bool
	stmtPos int
	prev    *token

	// parens records, per open parenthesis, whether it opened a subquery.
	parens []bool

	// signUnary is true when the last +/- written was a sign, not a binary
	// operator.
	signUnary bool
}

func (p *printer) String() string {
	p.flush()
	for len(p.lines) > 0 && p.lines[len(p.lines)-1] == "" {
		p.lines = p.lines[:len(p.lines)-1]
	}
	return strings.Join(p.lines, "\n")
}

func (p *printer) flush() {
	if p.content {
		p.lines = append(p.lines, strings.TrimRight(p.cur.String(), " "))
	}
	p.cur.Reset()
	p.content = false
}

func (p *printer) newline(level int) {
	p.flush()
	p.cur.WriteString(strings.Repeat(p.indent, level))
}

func (p *printer) write(t token, space bool) {
	if space && p.content {
		p.cur.WriteByte(' ')
	}
	p.cur.WriteString(t.text)
	p.content = true
}

// clauseLevel reports whether the cursor sits directly in a statement or
// subquery rather than inside ordinary parentheses.
func (p *printer) clauseLevel() bool {
	return len(p.parens) == 0 || p.parens[len(p.parens)-1]
}

func (p *printer) run(toks []token) {
	for i := range toks {
		t := toks[i]
		var next *token
		if i+1 < len(toks) {
			next = &toks[i+1]
		}

		switch t.kind {
		case tkKeyword:
			p.keyword(t, next)
		case tkOpen:
			sub := next != nil && next.kind == tkKeyword && (next.text == "SELECT" || next.text == "WITH")
			p.write(t, p.spaceBeforeOpen())
			p.parens = append(p.parens, sub)
			if sub {
				p.depth++
				p.newline(p.depth)
			}
		case tkClose:
			sub := false
			if n := len(p.parens); n > 0 {
				sub = p.parens[n-1]
				p.parens = p.parens[:n-1]
			}
			if sub {
				p.depth--
				p.newline(p.depth)
			}
			p.write(t, false)
		case tkComma, tkDot:
			p.write(t, false)
		case tkSemicolon:
			p.write(t, false)
			p.depth, p.parens, p.between = 0, nil, false
			if next != nil {
				// a comment after the terminator stays on its line
				if next.kind != tkLineComment {
					p.newline(0)
					p.lines = append(p.lines, "")
				}
				p.stmtPos = 0
				p.prev = nil
				continue
			}
		case tkLineComment:
			p.write(t, true)
			p.newline(p.depth)
			if p.stmtPos == 0 {
				continue
			}
		case tkOperator:
			if t.text == "-" || t.text == "+" {
				p.signUnary = p.startsOperand()
			}
			p.write(t, p.spaceBeforeOperator(t))
		default:
			p.write(t, p.spaceAfterPrev())
		}
		p.prev = &toks[i]
		p.stmtPos++
	}
}

func (p *printer) keyword(t token, next *token) {
	switch {
	case p.clauseLevel() && p.startsClause(t, next):
		p.newline(p.depth)
		p.write(t, false)
	case p.clauseLevel() && (t.text == "AND" || t.text == "OR") && !(t.text == "AND" && p.between):
		p.newline(p.depth + 1)
		p.write(t, false)
	default:
		if t.text == "AND" {
			p.between = false
		}
		p.write(t, p.spaceAfterPrev())
	}
	if t.text == "BETWEEN" {
		p.between = true
	}
}

func (p *printer) startsClause(t token, next *token) bool {
	switch t.text {
	case "SELECT", "FROM", "WHERE", "HAVING", "LIMIT", "OFFSET", "UNION", "INTERSECT",
		"EXCEPT", "VALUES", "RETURNING", "WINDOW", "SET", "UPDATE", "INSERT", "DELETE":
		return true
	case "GROUP", "ORDER":
		return next != nil && next.text == "BY"
	case "JOIN":
		return p.prev == nil || !(p.prev.kind == tkKeyword && joinModifiers[p.prev.text])
	case "LEFT", "RIGHT", "FULL", "INNER", "CROSS", "NATURAL":
		return next != nil && (next.text == "JOIN" || next.text == "OUTER")
	case "WITH":
		return p.stmtPos == 0 || (p.prev != nil && p.prev.kind == tkOpen)
	}
	return false
}

func (p *printer) spaceAfterPrev() bool {
	if p.prev == nil {
		return true
	}
	switch p.prev.kind {
	case tkOpen, tkDot:
		return false
	case tkOperator:
		return p.prev.text != "::" && !p.unaryPrev()
	}
	return true
}

func (p *printer) spaceBeforeOpen() bool {
	if p.prev == nil {
		return true
	}
	switch p.prev.kind {
	case tkWord, tkQuoted, tkOpen, tkDot:
		return false
	case tkKeyword:
		return !noSpaceBeforeParen[p.prev.text]
	}
	return p.spaceAfterPrev()
}

func (p *printer) spaceBeforeOperator(t token) bool {
	if t.text == "::" {
		return false
	}
	return p.spaceAfterPrev()
}

// unaryPrev reports whether the previous token was a sign applied to what
// follows rather than a binary operator.
func (p *printer) unaryPrev() bool {
	return (p.prev.text == "-" || p.prev.text == "+") && p.signUnary
}

var valueKeywords = toSet("END NULL TRUE FALSE CURRENT_DATE CURRENT_TIMESTAMP")

// startsOperand reports whether the cursor is where an operand, not an
// operator, is expected.
func (p *printer) startsOperand() bool {
	if p.prev == nil {
		return true
	}
	switch p.prev.kind {
	case tkOperator, tkOpen, tkComma:
		return true
	case tkKeyword:
		return !valueKeywords[p.prev.text]
	}
	return false
}
