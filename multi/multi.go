// File: multi/multi.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Multi owns the engine multiplexer and the association records of every
// transfer handle currently registered with it. Associations are keyed by the
// engine transfer object because completion messages identify transfers that
// way.

package multi

import (
	"go.uber.org/multierr"

	"github.com/momentics/hioload-transfer/api"
	"github.com/momentics/hioload-transfer/transfer"
)

// association is the record of one handle registered with the engine.
type association struct {
	handle *transfer.Handle
}

// Multi is not safe for concurrent use.
type Multi struct {
	engine       api.Engine
	raw          api.EngineMulti
	associations map[api.EngineTransfer]*association
}

// New allocates an engine multiplexer.
func New(engine api.Engine) (*Multi, error) {
	raw := engine.NewMulti()
	if raw == nil {
		return nil, &api.EngineError{Op: "new multi", Code: api.MultiOutOfMemory, Diagnostic: engine.MultiStrerror(api.MultiOutOfMemory)}
	}
	return &Multi{
		engine:       engine,
		raw:          raw,
		associations: make(map[api.EngineTransfer]*association),
	}, nil
}

// Engine returns the engine the multiplexer was allocated from.
func (m *Multi) Engine() api.Engine { return m.engine }

func (m *Multi) engineError(op string, code api.MultiCode) error {
	if code == api.MultiOK {
		return nil
	}
	return &api.EngineError{Op: op, Code: code, Diagnostic: m.engine.MultiStrerror(code)}
}

// Add registers h with the engine. The engine includes the handle's sockets in
// the next socket action.
func (m *Multi) Add(h *transfer.Handle) error {
	if err := m.engineError("add handle", m.raw.Add(h.Raw())); err != nil {
		return err
	}
	m.associations[h.Raw()] = &association{handle: h}
	return nil
}

// Lookup returns the handle registered for raw, nil when unknown.
func (m *Multi) Lookup(raw api.EngineTransfer) *transfer.Handle {
	if a, ok := m.associations[raw]; ok {
		return a.handle
	}
	return nil
}

// Remove unregisters the handle owning raw and returns it. Unknown transfers
// yield a nil handle and no error. The association is dropped even when the
// engine reports a failure.
func (m *Multi) Remove(raw api.EngineTransfer) (*transfer.Handle, error) {
	a, ok := m.associations[raw]
	if !ok {
		return nil, nil
	}
	delete(m.associations, raw)
	return a.handle, m.engineError("remove handle", m.raw.Remove(raw))
}

// Clear unregisters every handle.
func (m *Multi) Clear() error {
	var err error
	for raw := range m.associations {
		err = multierr.Append(err, m.engineError("remove handle", m.raw.Remove(raw)))
		delete(m.associations, raw)
	}
	return err
}

// Len returns the number of registered handles.
func (m *Multi) Len() int { return len(m.associations) }

// Handles returns the registered handles in no particular order.
func (m *Multi) Handles() []*transfer.Handle {
	out := make([]*transfer.Handle, 0, len(m.associations))
	for _, a := range m.associations {
		out = append(out, a.handle)
	}
	return out
}

// SetOption sets a multiplexer option; nil clears it.
func (m *Multi) SetOption(opt api.MultiOption, value any) error {
	return m.engineError("set "+opt.String(), m.raw.SetObjectOption(opt, value))
}

// SocketAction drives engine progress for fd, or for the timer when fd is
// api.SocketTimeout. A returned error leaves the engine state untrustworthy.
func (m *Multi) SocketAction(fd api.SocketID, events api.EventMask) (int, error) {
	running, code := m.raw.SocketAction(fd, events)
	return running, m.engineError("socket action", code)
}

// InfoRead pops one engine message, nil when none is left.
func (m *Multi) InfoRead() (*api.Message, int) {
	return m.raw.InfoRead()
}

// PollCompletionMessages drains every finished-transfer message produced so
// far. A second call without engine activity in between returns nothing.
func (m *Multi) PollCompletionMessages() []*api.Message {
	var done []*api.Message
	for {
		msg, _ := m.raw.InfoRead()
		if msg == nil {
			return done
		}
		if msg.Done {
			done = append(done, msg)
		}
	}
}

// Close unregisters every handle and releases the engine multiplexer.
func (m *Multi) Close() error {
	if m.raw == nil {
		return nil
	}
	err := m.Clear()
	err = multierr.Append(err, m.engineError("cleanup", m.raw.Cleanup()))
	m.raw = nil
	return err
}
