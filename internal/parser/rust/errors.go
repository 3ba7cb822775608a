package rust

import (
	"errors"
	"fmt"
)

// Fatal conditions that abort extraction of a single file.
var (
	ErrUnterminatedComment   = errors.New("unterminated block comment")
	ErrUnterminatedStatement = errors.New("unterminated statement")
)

// SyntaxError is a fatal per-file error with the line where the offending
// construct opened.
type SyntaxError struct {
	Err  error
	Line int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// lineAt returns the 1-based line of offset in src.
func lineAt(src string, offset int) int {
	line := 1
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			line++
		}
	}
	return line
}
