// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package hook

import (
	"context"

	"go.uber.org/zap"
)

// SocketProvider adapts Manager to the HookProvider interface so
// cmd/fioscoped can select between the socket provider (D1) and the eBPF
// provider (D2) behind one shape.
type SocketProvider struct {
	socketPath string
	logger     *zap.Logger
	mgr        *Manager
}

var _ HookProvider = (*SocketProvider)(nil)

// NewSocketProvider creates a socket-based HookProvider listening on
// socketPath. The underlying Manager is constructed in Start, once the
// caller's callbacks are known.
func NewSocketProvider(socketPath string, logger *zap.Logger) *SocketProvider {
	return &SocketProvider{socketPath: socketPath, logger: logger}
}

// Start begins listening for hook events.
func (p *SocketProvider) Start(ctx context.Context, callbacks Callbacks) error {
	p.mgr = NewManager(p.socketPath, callbacks, p.logger)
	return p.mgr.Start(ctx)
}

func (p *SocketProvider) Stop() error           { return p.mgr.Stop() }
func (p *SocketProvider) EnableTracing() error  { return p.mgr.EnableTracing() }
func (p *SocketProvider) DisableTracing() error { return p.mgr.DisableTracing() }
func (p *SocketProvider) IsTracingEnabled() bool { return p.mgr.IsTracingEnabled() }
func (p *SocketProvider) Name() string          { return "socket" }
