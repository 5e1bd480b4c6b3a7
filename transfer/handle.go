// File: transfer/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handle owns one engine transfer object and exposes typed option setters,
// the debug/write callback hookup and post-transfer accessors.

package transfer

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/momentics/hioload-transfer/api"
)

// DebugFunc receives engine debug output.
type DebugFunc func(kind api.InfoType, data []byte)

// WriteFunc receives response body data. It returns the number of bytes
// consumed; anything other than len(data) aborts the transfer.
type WriteFunc func(data []byte) int

// Handle is a configurable transfer. A Handle is used through its pointer
// only; the engine keeps that pointer as callback context.
type Handle struct {
	id      uuid.UUID
	engine  api.Engine
	raw     api.EngineTransfer
	headers *HeaderList

	debugFn DebugFunc
	writeFn WriteFunc
	// callback and callback-data values currently held by the engine
	registered map[api.Option]any

	// borrowed by the engine until the next SetPostFields call
	postFields []byte
}

// New allocates a transfer object from engine.
func New(engine api.Engine) (*Handle, error) {
	raw := engine.NewTransfer()
	if raw == nil {
		return nil, fmt.Errorf("new transfer: %w", api.ErrAllocationFailure)
	}
	return &Handle{
		id:         uuid.New(),
		engine:     engine,
		raw:        raw,
		headers:    NewHeaderList(engine),
		registered: make(map[api.Option]any),
	}, nil
}

// ID returns a process-unique identifier used in diagnostics.
func (h *Handle) ID() uuid.UUID { return h.id }

// Raw returns the engine transfer object.
func (h *Handle) Raw() api.EngineTransfer { return h.raw }

// Close releases the engine transfer object and the header list. The handle
// must not be registered with a multiplexer.
func (h *Handle) Close() {
	if h.raw == nil {
		return
	}
	h.raw.Cleanup()
	h.raw = nil
	h.headers.Reset()
}

func (h *Handle) configError(opt api.Option, code api.ResultCode) error {
	if code == api.ResultOK {
		return nil
	}
	return &api.ConfigError{Option: opt, Code: code, Diagnostic: h.engine.Strerror(code)}
}

// SetStringOption sets a string option; nil clears it.
func (h *Handle) SetStringOption(opt api.Option, value *string) error {
	return h.configError(opt, h.raw.SetStringOption(opt, value))
}

// SetIntOption sets an integer option.
func (h *Handle) SetIntOption(opt api.Option, value int64) error {
	return h.configError(opt, h.raw.SetIntOption(opt, value))
}

// SetObjectOption sets a callback, callback data, list or buffer option;
// nil clears it.
func (h *Handle) SetObjectOption(opt api.Option, value any) error {
	return h.configError(opt, h.raw.SetObjectOption(opt, value))
}

// registerCallback sets a function option and its data option as a pair. If
// the data option is rejected the previous function is put back, so the
// engine never calls a function with data meant for another one.
func (h *Handle) registerCallback(fnOpt, dataOpt api.Option, fn, data any) error {
	prev := h.registered[fnOpt]
	if err := h.SetObjectOption(fnOpt, fn); err != nil {
		return err
	}
	if err := h.SetObjectOption(dataOpt, data); err != nil {
		return multierr.Append(err, h.SetObjectOption(fnOpt, prev))
	}
	h.registered[fnOpt] = fn
	h.registered[dataOpt] = data
	return nil
}

// SetDebugFunction installs fn as the debug callback. A nil fn clears both the
// function and its data registration in the engine.
func (h *Handle) SetDebugFunction(fn DebugFunc) error {
	if fn == nil {
		if err := h.registerCallback(api.OptDebugFunction, api.OptDebugData, nil, nil); err != nil {
			return err
		}
		h.debugFn = nil
		return nil
	}
	if err := h.registerCallback(api.OptDebugFunction, api.OptDebugData, api.DebugFunc(debugTrampoline), h); err != nil {
		return err
	}
	h.debugFn = fn
	return nil
}

// SetWriteFunction installs fn as the body sink. A nil fn clears both the
// function and its data registration in the engine.
func (h *Handle) SetWriteFunction(fn WriteFunc) error {
	if fn == nil {
		if err := h.registerCallback(api.OptWriteFunction, api.OptWriteData, nil, nil); err != nil {
			return err
		}
		h.writeFn = nil
		return nil
	}
	if err := h.registerCallback(api.OptWriteFunction, api.OptWriteData, api.WriteFunc(writeTrampoline), h); err != nil {
		return err
	}
	h.writeFn = fn
	return nil
}

func debugTrampoline(kind api.InfoType, data []byte, ctx any) int {
	h := ctx.(*Handle)
	if h.debugFn != nil {
		h.debugFn(kind, data)
	}
	return 0
}

func writeTrampoline(data []byte, ctx any) int {
	h := ctx.(*Handle)
	if h.writeFn == nil {
		return len(data)
	}
	return h.writeFn(data)
}

// SetSocketHooks routes socket creation and release for this transfer to
// open and closeFn, both receiving ctx.
// Either both hooks are installed or the previous pair stays in place.
func (h *Handle) SetSocketHooks(open api.OpenSocketFunc, closeFn api.CloseSocketFunc, ctx any) error {
	prevFn, prevData := h.registered[api.OptOpenSocketFunction], h.registered[api.OptOpenSocketData]
	if err := h.registerCallback(api.OptOpenSocketFunction, api.OptOpenSocketData, open, ctx); err != nil {
		return err
	}
	if err := h.registerCallback(api.OptCloseSocketFunction, api.OptCloseSocketData, closeFn, ctx); err != nil {
		return multierr.Append(err, h.registerCallback(api.OptOpenSocketFunction, api.OptOpenSocketData, prevFn, prevData))
	}
	return nil
}

// ClearSocketHooks drops the socket hooks and their context from the engine.
func (h *Handle) ClearSocketHooks() error {
	if err := h.registerCallback(api.OptCloseSocketFunction, api.OptCloseSocketData, nil, nil); err != nil {
		return err
	}
	return h.registerCallback(api.OptOpenSocketFunction, api.OptOpenSocketData, nil, nil)
}

// syncHeaders re-registers the current list head; the engine snapshots the
// pointer per configuration.
func (h *Handle) syncHeaders() error {
	var raw any
	if head := h.headers.Raw(); head != nil {
		raw = head
	}
	return h.SetObjectOption(api.OptHTTPHeader, raw)
}

// SetHeader adds "name: value" to the request headers.
func (h *Handle) SetHeader(name, value string) error {
	if err := h.headers.Append(name + ": " + value); err != nil {
		return err
	}
	return h.syncHeaders()
}

// UnsetHeader suppresses a header the engine would otherwise send.
func (h *Handle) UnsetHeader(name string) error {
	if err := h.headers.Append(name + ":"); err != nil {
		return err
	}
	return h.syncHeaders()
}

// ResetHeaders drops every header line. The new, empty list is registered
// before the old chain is released.
func (h *Handle) ResetHeaders() error {
	old := h.headers
	h.headers = NewHeaderList(h.engine)
	err := h.syncHeaders()
	old.Reset()
	return err
}

// Headers returns the header lines in the order they were set.
func (h *Handle) Headers() []string {
	return h.headers.Lines()
}

// Perform runs the transfer synchronously, blocking the caller.
func (h *Handle) Perform() error {
	code := h.raw.Perform()
	if code == api.ResultOK {
		return nil
	}
	return api.NewTransferError(code, h.engine.Strerror(code))
}

// ResponseCode returns the last response code, 0 when none was received.
func (h *Handle) ResponseCode() int64 {
	v, code := h.raw.InfoInt(api.InfoResponseCode)
	if code != api.ResultOK {
		return 0
	}
	return v
}

// ContentLengthDownload returns the declared download size, -1 when unknown.
func (h *Handle) ContentLengthDownload() int64 {
	return h.contentLength(api.InfoContentLengthDownload)
}

// ContentLengthUpload returns the declared upload size, -1 when unknown.
func (h *Handle) ContentLengthUpload() int64 {
	return h.contentLength(api.InfoContentLengthUpload)
}

func (h *Handle) contentLength(info api.Info) int64 {
	v, code := h.raw.InfoFloat(info)
	if code != api.ResultOK || v < 0 {
		return -1
	}
	return int64(v)
}

// ContentType returns the response content type, empty when absent.
func (h *Handle) ContentType() string {
	v, code := h.raw.InfoString(api.InfoContentType)
	if code != api.ResultOK || v == nil {
		return ""
	}
	return *v
}
