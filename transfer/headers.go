// File: transfer/headers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transfer

import (
	"fmt"

	"github.com/momentics/hioload-transfer/api"
)

// HeaderList accumulates header lines in an engine-native list. Lines are only
// ever appended; the only way to drop lines is Reset, which releases the whole
// chain. Removing a single header is done by appending a bare "Name:" line.
type HeaderList struct {
	engine api.Engine
	head   api.StringList
}

// NewHeaderList returns an empty list backed by engine.
func NewHeaderList(engine api.Engine) *HeaderList {
	return &HeaderList{engine: engine}
}

// Append adds line at the end of the list. After a successful append Raw
// returns the new head; callers must not keep the previous value.
func (l *HeaderList) Append(line string) error {
	next := l.engine.ListAppend(l.head, line)
	if next == nil {
		return fmt.Errorf("append header %q: %w", line, api.ErrAllocationFailure)
	}
	l.head = next
	return nil
}

// Reset releases the entire chain.
func (l *HeaderList) Reset() {
	if l.head != nil {
		l.head.Free()
		l.head = nil
	}
}

// Raw returns the current head, nil when the list is empty.
func (l *HeaderList) Raw() api.StringList {
	return l.head
}

// Lines returns the appended lines in order.
func (l *HeaderList) Lines() []string {
	if l.head == nil {
		return nil
	}
	return l.head.Values()
}

// Len returns the number of lines.
func (l *HeaderList) Len() int {
	return len(l.Lines())
}
