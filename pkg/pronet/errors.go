package pronet

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrBadVtxID = errors.New("bad vertex ID")
	ErrSelfLoop = errors.New("self-loop edge")
	ErrBadEdge  = errors.New("bad edge record")
)

// InputGraphError reports a malformed edge list. It is raised before any
// graph processing starts and leaves no partial result behind.
type InputGraphError struct {
	Line   int // 1-based, the header is line 1
	Column int // 1-based, 0 when the whole record is at fault
	Err    error
}

func (e *InputGraphError) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("input graph: line %d column %d: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("input graph: line %d: %v", e.Line, e.Err)
}

func (e *InputGraphError) Unwrap() error {
	return e.Err
}
