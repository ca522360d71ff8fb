package sqlfmt

import "strings"

var cteBodies = toSet("SELECT INSERT UPDATE DELETE MERGE VALUES")

// Statements returns the leading verb of each statement in sql, upper-cased
// and in order ("SELECT", "DROP", ...). For a WITH query the verb is that of
// the statement the CTEs feed. Comments and empty statements are skipped.
func Statements(sql string) ([]string, error) {
	toks, err := tokenize(sql)
	if err != nil {
		return nil, err
	}

	var (
		verbs   []string
		verb    string
		inWith  bool
		depth   int
		started bool
	)
	for _, t := range toks {
		switch t.kind {
		case tkLineComment, tkBlockComment:
			continue
		case tkSemicolon:
			if verb != "" {
				verbs = append(verbs, verb)
			}
			verb, inWith, depth, started = "", false, 0, false
			continue
		case tkOpen:
			depth++
		case tkClose:
			depth--
		}

		word := t.kind == tkWord || t.kind == tkKeyword
		switch {
		case !started:
			started = true
			if !word {
				verb = "UNKNOWN"
				continue
			}
			verb = strings.ToUpper(t.text)
			inWith = verb == "WITH"
		case inWith && word && depth == 0:
			if up := strings.ToUpper(t.text); cteBodies[up] {
				verb, inWith = up, false
			}
		}
	}
	if verb != "" {
		verbs = append(verbs, verb)
	}
	return verbs, nil
}
