// Package fake
// Author: momentics <momentics@gmail.com>
//
// Recording stub of the transfer engine. Every object records what the layers
// above configured on it, and tests script engine behaviour through hooks that
// run where the real engine would call back (during Add and SocketAction).

package fake

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/momentics/hioload-transfer/api"
)

// Engine is a fake api.Engine.
type Engine struct {
	mu sync.Mutex

	// FailNewTransfer, FailNewMulti and FailListAppend simulate allocation failures.
	FailNewTransfer bool
	FailNewMulti    bool
	FailListAppend  bool

	transfers []*Transfer
	multis    []*Multi
	liveNodes int
}

// NewEngine returns an engine with no scripted failures.
func NewEngine() *Engine {
	return &Engine{}
}

// NewTransfer implements api.Engine.
func (e *Engine) NewTransfer() api.EngineTransfer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailNewTransfer {
		return nil
	}
	t := newTransfer()
	e.transfers = append(e.transfers, t)
	return t
}

// NewMulti implements api.Engine.
func (e *Engine) NewMulti() api.EngineMulti {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailNewMulti {
		return nil
	}
	m := newMulti()
	e.multis = append(e.multis, m)
	return m
}

// ListAppend implements api.Engine. The returned node becomes the new head and
// links the previous one.
func (e *Engine) ListAppend(list api.StringList, line string) api.StringList {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailListAppend {
		return nil
	}
	var prev *ListNode
	if list != nil {
		prev = list.(*ListNode)
	}
	e.liveNodes++
	return &ListNode{engine: e, value: line, prev: prev}
}

// Strerror implements api.Engine.
func (e *Engine) Strerror(code api.ResultCode) string {
	return fmt.Sprintf("transfer code %d", int(code))
}

// MultiStrerror implements api.Engine.
func (e *Engine) MultiStrerror(code api.MultiCode) string {
	return fmt.Sprintf("multi code %d", int(code))
}

// LiveListNodes reports list nodes appended and not yet freed.
func (e *Engine) LiveListNodes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.liveNodes
}

// Transfers returns every transfer created so far.
func (e *Engine) Transfers() []*Transfer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Transfer(nil), e.transfers...)
}

// Multis returns every multiplexer created so far.
func (e *Engine) Multis() []*Multi {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Multi(nil), e.multis...)
}

// ListNode is one node of a fake string list.
type ListNode struct {
	engine *Engine
	value  string
	prev   *ListNode
	freed  bool
}

// Values walks the chain from its oldest node.
func (n *ListNode) Values() []string {
	var out []string
	for cur := n; cur != nil; cur = cur.prev {
		out = append(out, cur.value)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Free releases the whole chain.
func (n *ListNode) Free() {
	n.engine.mu.Lock()
	defer n.engine.mu.Unlock()
	for cur := n; cur != nil; cur = cur.prev {
		if !cur.freed {
			cur.freed = true
			n.engine.liveNodes--
		}
	}
}

// Freed reports whether the node was released.
func (n *ListNode) Freed() bool {
	n.engine.mu.Lock()
	defer n.engine.mu.Unlock()
	return n.freed
}

// Transfer is a fake api.EngineTransfer.
type Transfer struct {
	mu sync.Mutex

	strings map[api.Option]*string
	ints    map[api.Option]int64
	objects map[api.Option]any
	reject  map[api.Option]api.ResultCode

	// PerformResult is returned by Perform.
	PerformResult api.ResultCode

	ResponseCode          int64
	ContentLengthDownload float64
	ContentLengthUpload   float64
	ContentType           *string
	// InfoResult is returned by every info query.
	InfoResult api.ResultCode

	// FailEscape makes Escape and Unescape report allocation failure.
	FailEscape bool

	cleanedUp bool
}

func newTransfer() *Transfer {
	return &Transfer{
		strings:               make(map[api.Option]*string),
		ints:                  make(map[api.Option]int64),
		objects:               make(map[api.Option]any),
		reject:                make(map[api.Option]api.ResultCode),
		ContentLengthDownload: -1,
		ContentLengthUpload:   -1,
	}
}

// Reject makes every later set of opt fail with code.
func (t *Transfer) Reject(opt api.Option, code api.ResultCode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reject[opt] = code
}

func (t *Transfer) rejected(opt api.Option) api.ResultCode {
	if code, ok := t.reject[opt]; ok {
		return code
	}
	return api.ResultOK
}

// SetStringOption implements api.EngineTransfer.
func (t *Transfer) SetStringOption(opt api.Option, value *string) api.ResultCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if code := t.rejected(opt); code != api.ResultOK {
		return code
	}
	if value == nil {
		delete(t.strings, opt)
		return api.ResultOK
	}
	v := *value
	t.strings[opt] = &v
	return api.ResultOK
}

// SetIntOption implements api.EngineTransfer.
func (t *Transfer) SetIntOption(opt api.Option, value int64) api.ResultCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if code := t.rejected(opt); code != api.ResultOK {
		return code
	}
	t.ints[opt] = value
	return api.ResultOK
}

// SetObjectOption implements api.EngineTransfer.
func (t *Transfer) SetObjectOption(opt api.Option, value any) api.ResultCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if code := t.rejected(opt); code != api.ResultOK {
		return code
	}
	if value == nil {
		delete(t.objects, opt)
		return api.ResultOK
	}
	t.objects[opt] = value
	return api.ResultOK
}

// StringOpt returns a configured string option.
func (t *Transfer) StringOpt(opt api.Option) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.strings[opt]
	if !ok {
		return "", false
	}
	return *v, true
}

// Int returns a configured integer option.
func (t *Transfer) Int(opt api.Option) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.ints[opt]
	return v, ok
}

// Object returns a configured object option, nil when unset.
func (t *Transfer) Object(opt api.Option) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.objects[opt]
}

// Perform implements api.EngineTransfer.
func (t *Transfer) Perform() api.ResultCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.PerformResult
}

// InfoInt implements api.EngineTransfer.
func (t *Transfer) InfoInt(info api.Info) (int64, api.ResultCode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.InfoResult != api.ResultOK {
		return 0, t.InfoResult
	}
	if info == api.InfoResponseCode {
		return t.ResponseCode, api.ResultOK
	}
	return 0, api.ResultBadFunctionArgument
}

// InfoFloat implements api.EngineTransfer.
func (t *Transfer) InfoFloat(info api.Info) (float64, api.ResultCode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.InfoResult != api.ResultOK {
		return 0, t.InfoResult
	}
	switch info {
	case api.InfoContentLengthDownload:
		return t.ContentLengthDownload, api.ResultOK
	case api.InfoContentLengthUpload:
		return t.ContentLengthUpload, api.ResultOK
	}
	return 0, api.ResultBadFunctionArgument
}

// InfoString implements api.EngineTransfer.
func (t *Transfer) InfoString(info api.Info) (*string, api.ResultCode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.InfoResult != api.ResultOK {
		return nil, t.InfoResult
	}
	if info == api.InfoContentType {
		return t.ContentType, api.ResultOK
	}
	return nil, api.ResultBadFunctionArgument
}

// Escape implements api.EngineTransfer with a minimal percent encoding.
func (t *Transfer) Escape(s string) (string, bool) {
	if t.FailEscape {
		return "", false
	}
	const hex = "0123456789ABCDEF"
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '.' || c == '_' || c == '~' {
			out = append(out, c)
			continue
		}
		out = append(out, '%', hex[c>>4], hex[c&0x0f])
	}
	return string(out), true
}

// Unescape implements api.EngineTransfer.
func (t *Transfer) Unescape(s string) ([]byte, bool) {
	if t.FailEscape {
		return nil, false
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				out = append(out, byte(v))
				i += 2
				continue
			}
		}
		out = append(out, s[i])
	}
	return out, true
}

// Cleanup implements api.EngineTransfer.
func (t *Transfer) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanedUp = true
}

// CleanedUp reports whether Cleanup was called.
func (t *Transfer) CleanedUp() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cleanedUp
}

// Debug invokes the registered debug callback like the engine would.
func (t *Transfer) Debug(kind api.InfoType, data []byte) int {
	fn, _ := t.Object(api.OptDebugFunction).(api.DebugFunc)
	if fn == nil {
		return 0
	}
	return fn(kind, data, t.Object(api.OptDebugData))
}

// Write invokes the registered write callback like the engine would. It
// returns len(data) when no callback is registered.
func (t *Transfer) Write(data []byte) int {
	fn, _ := t.Object(api.OptWriteFunction).(api.WriteFunc)
	if fn == nil {
		return len(data)
	}
	return fn(data, t.Object(api.OptWriteData))
}

// OpenSocket invokes the registered open-socket hook. It returns api.SocketBad
// when none is registered.
func (t *Transfer) OpenSocket(purpose api.SocketPurpose, family api.Family) api.SocketID {
	fn, _ := t.Object(api.OptOpenSocketFunction).(api.OpenSocketFunc)
	if fn == nil {
		return api.SocketBad
	}
	return fn(t.Object(api.OptOpenSocketData), purpose, family)
}

// CloseSocket invokes the registered close-socket hook.
func (t *Transfer) CloseSocket(fd api.SocketID) int {
	fn, _ := t.Object(api.OptCloseSocketFunction).(api.CloseSocketFunc)
	if fn == nil {
		return 0
	}
	return fn(t.Object(api.OptCloseSocketData), fd)
}

// Action records one SocketAction call.
type Action struct {
	Fd     api.SocketID
	Events api.EventMask
}

// Multi is a fake api.EngineMulti.
type Multi struct {
	mu sync.Mutex

	handles  map[api.EngineTransfer]bool
	objects  map[api.MultiOption]any
	actions  []Action
	messages []*api.Message

	// FailAdd, FailRemove and FailAction are returned instead of MultiOK.
	FailAdd    api.MultiCode
	FailRemove api.MultiCode
	FailAction api.MultiCode

	// OnAdd runs after a successful Add, where the engine would arm its timer.
	OnAdd func(m *Multi, t api.EngineTransfer)
	// OnAction runs inside SocketAction, where the engine would make progress.
	OnAction func(m *Multi, fd api.SocketID, events api.EventMask)

	cleanedUp bool
}

func newMulti() *Multi {
	return &Multi{
		handles: make(map[api.EngineTransfer]bool),
		objects: make(map[api.MultiOption]any),
	}
}

// Add implements api.EngineMulti.
func (m *Multi) Add(t api.EngineTransfer) api.MultiCode {
	m.mu.Lock()
	if m.FailAdd != api.MultiOK {
		m.mu.Unlock()
		return m.FailAdd
	}
	if m.handles[t] {
		m.mu.Unlock()
		return api.MultiAddedAlready
	}
	m.handles[t] = true
	hook := m.OnAdd
	m.mu.Unlock()
	if hook != nil {
		hook(m, t)
	}
	return api.MultiOK
}

// Remove implements api.EngineMulti.
func (m *Multi) Remove(t api.EngineTransfer) api.MultiCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRemove != api.MultiOK {
		return m.FailRemove
	}
	if !m.handles[t] {
		return api.MultiBadEasyHandle
	}
	delete(m.handles, t)
	return api.MultiOK
}

// SetObjectOption implements api.EngineMulti.
func (m *Multi) SetObjectOption(opt api.MultiOption, value any) api.MultiCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == nil {
		delete(m.objects, opt)
		return api.MultiOK
	}
	m.objects[opt] = value
	return api.MultiOK
}

// Object returns a configured multiplexer option, nil when unset.
func (m *Multi) Object(opt api.MultiOption) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[opt]
}

// SocketAction implements api.EngineMulti.
func (m *Multi) SocketAction(fd api.SocketID, events api.EventMask) (int, api.MultiCode) {
	m.mu.Lock()
	m.actions = append(m.actions, Action{Fd: fd, Events: events})
	if m.FailAction != api.MultiOK {
		code := m.FailAction
		m.mu.Unlock()
		return 0, code
	}
	hook := m.OnAction
	m.mu.Unlock()
	if hook != nil {
		hook(m, fd, events)
	}
	return m.Running(), api.MultiOK
}

// InfoRead implements api.EngineMulti.
func (m *Multi) InfoRead() (*api.Message, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil, 0
	}
	msg := m.messages[0]
	m.messages = m.messages[1:]
	return msg, len(m.messages)
}

// Cleanup implements api.EngineMulti.
func (m *Multi) Cleanup() api.MultiCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanedUp = true
	return api.MultiOK
}

// CleanedUp reports whether Cleanup was called.
func (m *Multi) CleanedUp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanedUp
}

// Running reports the number of transfers currently added.
func (m *Multi) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Has reports whether t is currently added.
func (m *Multi) Has(t api.EngineTransfer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[t]
}

// Actions returns every recorded SocketAction call.
func (m *Multi) Actions() []Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Action(nil), m.actions...)
}

// Complete queues a finished-transfer message.
func (m *Multi) Complete(t api.EngineTransfer, result api.ResultCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, &api.Message{Done: true, Transfer: t, Result: result})
}

// ArmTimer invokes the registered timer callback like the engine would.
func (m *Multi) ArmTimer(timeoutMS int64) int {
	fn, _ := m.Object(api.MOptTimerFunction).(api.TimerFunc)
	if fn == nil {
		return 0
	}
	return fn(timeoutMS, m.Object(api.MOptTimerData))
}

// Poll invokes the registered socket callback like the engine would.
func (m *Multi) Poll(t api.EngineTransfer, fd api.SocketID, action api.PollAction) int {
	fn, _ := m.Object(api.MOptSocketFunction).(api.SocketFunc)
	if fn == nil {
		return 0
	}
	return fn(t, fd, action, m.Object(api.MOptSocketData))
}
