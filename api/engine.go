// File: api/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Boundary contract of the non-blocking transfer engine. The engine itself
// (connection setup, protocol framing, TLS) lives outside this module; these
// interfaces describe only what the handle, multiplexer and adapter layers
// consume from it.

package api

// Option identifies a per-transfer engine option.
type Option int

// Transfer options understood by the handle layer.
const (
	OptURL Option = iota + 1
	OptUserAgent
	OptProxy
	OptCAInfo
	OptCookieFile
	OptUsername
	OptPassword
	OptSSLVerifyPeer
	OptSSLVerifyHost
	OptConnectTimeoutMS
	OptHTTPGet
	OptPost
	OptPostFieldSizeLarge
	OptPostFields
	OptCopyPostFields
	OptHTTPHeader
	OptDebugFunction
	OptDebugData
	OptWriteFunction
	OptWriteData
	OptOpenSocketFunction
	OptOpenSocketData
	OptCloseSocketFunction
	OptCloseSocketData
)

var optionNames = map[Option]string{
	OptURL:                 "URL",
	OptUserAgent:           "USERAGENT",
	OptProxy:               "PROXY",
	OptCAInfo:              "CAINFO",
	OptCookieFile:          "COOKIEFILE",
	OptUsername:            "USERNAME",
	OptPassword:            "PASSWORD",
	OptSSLVerifyPeer:       "SSL_VERIFYPEER",
	OptSSLVerifyHost:       "SSL_VERIFYHOST",
	OptConnectTimeoutMS:    "CONNECTTIMEOUT_MS",
	OptHTTPGet:             "HTTPGET",
	OptPost:                "POST",
	OptPostFieldSizeLarge:  "POSTFIELDSIZE_LARGE",
	OptPostFields:          "POSTFIELDS",
	OptCopyPostFields:      "COPYPOSTFIELDS",
	OptHTTPHeader:          "HTTPHEADER",
	OptDebugFunction:       "DEBUGFUNCTION",
	OptDebugData:           "DEBUGDATA",
	OptWriteFunction:       "WRITEFUNCTION",
	OptWriteData:           "WRITEDATA",
	OptOpenSocketFunction:  "OPENSOCKETFUNCTION",
	OptOpenSocketData:      "OPENSOCKETDATA",
	OptCloseSocketFunction: "CLOSESOCKETFUNCTION",
	OptCloseSocketData:     "CLOSESOCKETDATA",
}

func (o Option) String() string {
	if name, ok := optionNames[o]; ok {
		return name
	}
	return "UNKNOWN_OPTION"
}

// MultiOption identifies a multiplexer-level engine option.
type MultiOption int

const (
	MOptTimerFunction MultiOption = iota + 1
	MOptTimerData
	MOptSocketFunction
	MOptSocketData
)

func (o MultiOption) String() string {
	switch o {
	case MOptTimerFunction:
		return "TIMERFUNCTION"
	case MOptTimerData:
		return "TIMERDATA"
	case MOptSocketFunction:
		return "SOCKETFUNCTION"
	case MOptSocketData:
		return "SOCKETDATA"
	}
	return "UNKNOWN_MULTI_OPTION"
}

// Info identifies a piece of post-transfer information.
type Info int

const (
	InfoResponseCode Info = iota + 1
	InfoContentLengthDownload
	InfoContentLengthUpload
	InfoContentType
)

// InfoType classifies debug callback payloads.
type InfoType int

const (
	InfoText InfoType = iota
	InfoHeaderIn
	InfoHeaderOut
	InfoDataIn
	InfoDataOut
	InfoSSLDataIn
	InfoSSLDataOut
)

// ResultCode is the engine's per-transfer status code.
type ResultCode int

// Well known per-transfer codes. Engines may report others; they map to
// TransferOther.
const (
	ResultOK ResultCode = iota
	ResultUnsupportedProtocol
	ResultURLMalformat
	ResultCouldntResolveProxy
	ResultCouldntResolveHost
	ResultCouldntConnect
	ResultHTTPReturnedError
	ResultWriteError
	ResultOutOfMemory
	ResultOperationTimedOut
	ResultAbortedByCallback
	ResultSSLConnectError
	ResultSendError
	ResultRecvError
	ResultPeerFailedVerification
	ResultUnknownOption
	ResultBadFunctionArgument
)

// MultiCode is the engine's multiplexer status code.
type MultiCode int

const (
	MultiOK MultiCode = iota
	MultiBadHandle
	MultiBadEasyHandle
	MultiOutOfMemory
	MultiInternalError
	MultiBadSocket
	MultiUnknownOption
	MultiAddedAlready
)

// SocketID is a native socket descriptor as exchanged with the engine.
type SocketID int

const (
	// SocketBad is returned by an open-socket hook that declines the request.
	SocketBad SocketID = -1
	// SocketTimeout is passed to SocketAction when the engine timer fired.
	SocketTimeout SocketID = -1
)

// SocketPurpose tags an open-socket request.
type SocketPurpose int

const (
	PurposeIPConnection SocketPurpose = iota
	PurposeAccept
)

// PollAction is what the engine asks to be notified about for a socket.
type PollAction int

const (
	PollNone PollAction = iota
	PollIn
	PollOut
	PollInOut
	PollRemove
)

// Mask converts a poll action into the equivalent event mask.
func (a PollAction) Mask() EventMask {
	switch a {
	case PollIn:
		return EventRead
	case PollOut:
		return EventWrite
	case PollInOut:
		return EventRead | EventWrite
	}
	return 0
}

func (a PollAction) String() string {
	switch a {
	case PollNone:
		return "none"
	case PollIn:
		return "in"
	case PollOut:
		return "out"
	case PollInOut:
		return "in/out"
	case PollRemove:
		return "remove"
	}
	return "unknown"
}

// Callback slot signatures. Every slot receives the opaque context value that
// was registered in the paired *Data option.
type (
	DebugFunc       func(kind InfoType, data []byte, ctx any) int
	WriteFunc       func(data []byte, ctx any) int
	OpenSocketFunc  func(ctx any, purpose SocketPurpose, family Family) SocketID
	CloseSocketFunc func(ctx any, fd SocketID) int
	TimerFunc       func(timeoutMS int64, ctx any) int
	SocketFunc      func(t EngineTransfer, fd SocketID, action PollAction, ctx any) int
)

// StringList is one node chain of an engine-native string list. The value the
// engine returns from ListAppend is the chain's current head.
type StringList interface {
	Values() []string
	Free()
}

// Message reports a finished transfer.
type Message struct {
	Done     bool
	Transfer EngineTransfer
	Result   ResultCode
}

// EngineTransfer is a single engine transfer object.
type EngineTransfer interface {
	SetStringOption(opt Option, value *string) ResultCode
	SetIntOption(opt Option, value int64) ResultCode
	SetObjectOption(opt Option, value any) ResultCode
	Perform() ResultCode
	InfoInt(info Info) (int64, ResultCode)
	InfoFloat(info Info) (float64, ResultCode)
	InfoString(info Info) (*string, ResultCode)
	Escape(s string) (string, bool)
	Unescape(s string) ([]byte, bool)
	Cleanup()
}

// EngineMulti is the engine's multiplexer object.
type EngineMulti interface {
	Add(t EngineTransfer) MultiCode
	Remove(t EngineTransfer) MultiCode
	SetObjectOption(opt MultiOption, value any) MultiCode
	SocketAction(fd SocketID, events EventMask) (running int, code MultiCode)
	InfoRead() (msg *Message, remaining int)
	Cleanup() MultiCode
}

// Engine creates engine objects and describes engine status codes.
type Engine interface {
	NewTransfer() EngineTransfer
	NewMulti() EngineMulti
	ListAppend(list StringList, line string) StringList
	Strerror(code ResultCode) string
	MultiStrerror(code MultiCode) string
}
