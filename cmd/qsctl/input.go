package main

import (
	"errors"
	"io"
	"os"
	"strings"
)

// readInput returns the command's text input: the --file contents, the
// joined positional args, or stdin when it is not a terminal.
func readInput(file string, args []string, stdin io.Reader) (string, error) {
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if stdin != nil && !isTerminal(stdin) {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		if s := string(b); strings.TrimSpace(s) != "" {
			return s, nil
		}
	}
	return "", errors.New("no input: pass text as arguments, use --file, or pipe it on stdin")
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return st.Mode()&os.ModeCharDevice != 0
}
