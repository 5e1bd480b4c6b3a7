// File: adapters/hooks.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine callback slots. Each one receives the adapter as its registered
// context and delegates to a method; no logic lives here.

package adapters

import "github.com/momentics/hioload-transfer/api"

func onTimer(timeoutMS int64, ctx any) int {
	ctx.(*MultiAdapter).armTimer(timeoutMS)
	return 0
}

func onSocket(_ api.EngineTransfer, fd api.SocketID, action api.PollAction, ctx any) int {
	ctx.(*MultiAdapter).setInterest(fd, action)
	return 0
}

func onOpenSocket(ctx any, purpose api.SocketPurpose, family api.Family) api.SocketID {
	return ctx.(*MultiAdapter).openSocket(purpose, family)
}

func onCloseSocket(ctx any, fd api.SocketID) int {
	ctx.(*MultiAdapter).closeSocket(fd)
	return 0
}

var (
	_ api.TimerFunc       = onTimer
	_ api.SocketFunc      = onSocket
	_ api.OpenSocketFunc  = onOpenSocket
	_ api.CloseSocketFunc = onCloseSocket
)
