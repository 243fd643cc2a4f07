package rulesrc

import (
	"fmt"

	"github.com/vk/buildgrid/internal/label"
)

// ParseError reports a rule file that could not be parsed or decoded.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("rule file %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DuplicateTargetError reports two declarations claiming the same target
// identity within one load.
type DuplicateTargetError struct {
	Target    label.Label
	File      string
	FirstFile string
}

func (e *DuplicateTargetError) Error() string {
	return fmt.Sprintf("target %s declared in %s is already declared in %s",
		e.Target, e.File, e.FirstFile)
}
