package core

import "sync"

// forkRegistry tracks every live Handler so the cgo pthread_atfork
// trampolines (fork_unix.go) have something to call back into. A process
// embedding this collector as a shared library typically has exactly one
// Handler, but the registry supports more in case a host links it in more
// than once.
// mu must never be contended at fork time: runPrefork takes it from inside
// the pthread_atfork prepare callback, on the one thread the OS lets run
// until postfork completes, so any other goroutine blocked on mu when
// fork() is called stalls the fork itself until postfork releases it.
var forkRegistry struct {
	mu       sync.Mutex
	handlers []*Handler
}

var installAtforkOnce sync.Once

// registerForFork adds h to the set of handlers that Prefork/PostforkParent/
// PostforkChild are driven against when the host process calls fork(), and
// installs the OS-level pthread_atfork hook the first time any Handler is
// created.
func registerForFork(h *Handler) {
	installAtforkOnce.Do(installAtfork)

	forkRegistry.mu.Lock()
	defer forkRegistry.mu.Unlock()
	forkRegistry.handlers = append(forkRegistry.handlers, h)
}

// runPrefork is invoked from the pthread_atfork prepare callback, on the
// thread that is about to call fork(). It must not allocate or call back
// into anything that itself takes a lock already held by another thread,
// since no other goroutine gets to run until postfork completes.
func runPrefork() {
	forkRegistry.mu.Lock()
	defer forkRegistry.mu.Unlock()
	for _, h := range forkRegistry.handlers {
		h.Prefork()
	}
}

// runPostforkParent is invoked in the parent immediately after fork()
// returns there.
func runPostforkParent() {
	forkRegistry.mu.Lock()
	defer forkRegistry.mu.Unlock()
	for i := len(forkRegistry.handlers) - 1; i >= 0; i-- {
		forkRegistry.handlers[i].PostforkParent()
	}
}

// runPostforkChild is invoked in the child immediately after fork() returns
// there. The child has exactly one OS thread (the one that called fork);
// every other goroutine the Go runtime thought it had simply does not exist
// in this address space anymore, so this releases the locks without
// resuming any consumer/producer goroutines — those must be restarted by
// the host, if the child intends to keep using this package at all.
func runPostforkChild() {
	forkRegistry.mu.Lock()
	defer forkRegistry.mu.Unlock()
	for i := len(forkRegistry.handlers) - 1; i >= 0; i-- {
		forkRegistry.handlers[i].PostforkChild()
	}
}
