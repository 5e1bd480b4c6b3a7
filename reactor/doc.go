// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the host event loop the transfer adapter runs on:
// an epoll poller for reactor-owned stream sockets, millisecond timers, and a
// worker executor that runs posted tasks and serialized strands.
package reactor
