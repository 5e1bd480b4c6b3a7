// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by the handle, multiplexer and adapter layers.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrAllocationFailure = errors.New("engine allocation failure")
	ErrClosed            = errors.New("adapter is closed")
	ErrNotFound          = errors.New("transfer not found")
)

// ErrorCode classifies library errors.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeConfig
	ErrCodeEngine
	ErrCodeTransfer
	ErrCodeAllocation
	ErrCodeInternal
)

// ConfigError reports an option value the engine rejected. The handle's
// configuration is left as it was before the call.
type ConfigError struct {
	Option     Option
	Code       ResultCode
	Diagnostic string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("set option %s: %s", e.Option, e.Diagnostic)
}

// ErrorCode implements Coder.
func (e *ConfigError) ErrorCode() ErrorCode { return ErrCodeConfig }

// EngineError reports a multiplexer registration or progress fault. The
// multiplexer that produced it should be discarded.
type EngineError struct {
	Op         string
	Code       MultiCode
	Diagnostic string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Diagnostic)
}

// ErrorCode implements Coder.
func (e *EngineError) ErrorCode() ErrorCode { return ErrCodeEngine }

// Is matches ErrAllocationFailure for out-of-memory engine codes.
func (e *EngineError) Is(target error) bool {
	return target == ErrAllocationFailure && e.Code == MultiOutOfMemory
}

// TransferKind groups per-transfer failures.
type TransferKind int

const (
	TransferOther TransferKind = iota
	TransferResolve
	TransferConnect
	TransferTimeout
	TransferTLS
	TransferSend
	TransferRecv
	TransferHTTP
	TransferAborted
	TransferWrite
	TransferProtocol
)

var transferKindNames = [...]string{
	TransferOther:    "other",
	TransferResolve:  "resolve",
	TransferConnect:  "connect",
	TransferTimeout:  "timeout",
	TransferTLS:      "tls",
	TransferSend:     "send",
	TransferRecv:     "recv",
	TransferHTTP:     "http",
	TransferAborted:  "aborted",
	TransferWrite:    "write",
	TransferProtocol: "protocol",
}

func (k TransferKind) String() string {
	if int(k) < len(transferKindNames) {
		return transferKindNames[k]
	}
	return "other"
}

// TransferError is the outcome of a failed transfer, delivered through the
// completion callback.
type TransferError struct {
	Kind       TransferKind
	Code       ResultCode
	Diagnostic string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed (%s): %s", e.Kind, e.Diagnostic)
}

// ErrorCode implements Coder.
func (e *TransferError) ErrorCode() ErrorCode { return ErrCodeTransfer }

// Is matches ErrAllocationFailure for out-of-memory transfer codes.
func (e *TransferError) Is(target error) bool {
	return target == ErrAllocationFailure && e.Code == ResultOutOfMemory
}

// Coder is implemented by every typed error of this package.
type Coder interface {
	ErrorCode() ErrorCode
}

// CodeOf returns the ErrorCode carried by err, ErrCodeAllocation for
// allocation failures, ErrCodeOK for nil and ErrCodeInternal otherwise.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	if errors.Is(err, ErrAllocationFailure) {
		return ErrCodeAllocation
	}
	return ErrCodeInternal
}

// KindOf maps an engine result code to its TransferKind.
func KindOf(code ResultCode) TransferKind {
	switch code {
	case ResultCouldntResolveHost, ResultCouldntResolveProxy:
		return TransferResolve
	case ResultCouldntConnect:
		return TransferConnect
	case ResultOperationTimedOut:
		return TransferTimeout
	case ResultSSLConnectError, ResultPeerFailedVerification:
		return TransferTLS
	case ResultSendError:
		return TransferSend
	case ResultRecvError:
		return TransferRecv
	case ResultHTTPReturnedError:
		return TransferHTTP
	case ResultAbortedByCallback:
		return TransferAborted
	case ResultWriteError:
		return TransferWrite
	case ResultUnsupportedProtocol, ResultURLMalformat:
		return TransferProtocol
	}
	return TransferOther
}

// NewTransferError builds the TransferError for a failed result code.
func NewTransferError(code ResultCode, diagnostic string) *TransferError {
	return &TransferError{Kind: KindOf(code), Code: code, Diagnostic: diagnostic}
}
