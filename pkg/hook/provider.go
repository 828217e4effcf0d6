// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package hook

import "context"

// HookProvider is the interface for hook event sources.
// Implementations include the eBPF provider (Linux 5.8+, kprobe/kretprobe
// on the file I/O syscalls) and the socket provider (LD_PRELOAD/
// DYLD_INSERT_LIBRARIES shim talking over a Unix DGRAM socket).
type HookProvider interface {
	// Start begins capturing hook events and dispatching to callbacks.
	Start(ctx context.Context, callbacks Callbacks) error

	// Stop shuts down the hook provider and releases resources.
	Stop() error

	// EnableTracing activates tracing in observed processes.
	EnableTracing() error

	// DisableTracing deactivates tracing. Hooks become pass-through.
	DisableTracing() error

	// IsTracingEnabled returns the current tracing state.
	IsTracingEnabled() bool

	// Name returns the provider name (e.g., "ebpf", "socket", "stub").
	Name() string
}
