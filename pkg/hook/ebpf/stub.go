package ebpf

import (
	"context"
	"fmt"

	"github.com/noahyzhang/fioscope/pkg/hook"
	"go.uber.org/zap"
)

// StubProvider is a no-op HookProvider that NewProvider returns on
// platforms other than Linux, where eBPF is not available. The daemon still
// starts and serves health/metrics; only hook-based tracing is unavailable
// until a socket provider is configured instead.
type StubProvider struct {
	reason string
	logger *zap.Logger
}

var _ hook.HookProvider = (*StubProvider)(nil)

// NewStubProvider creates a stub provider that logs why eBPF is unavailable.
func NewStubProvider(reason string, logger *zap.Logger) *StubProvider {
	return &StubProvider{reason: reason, logger: logger}
}

func (s *StubProvider) Start(_ context.Context, _ hook.Callbacks) error {
	s.logger.Warn("hook tracing unavailable — running in stub mode",
		zap.String("reason", s.reason),
	)
	return nil
}

func (s *StubProvider) Stop() error {
	return nil
}

func (s *StubProvider) EnableTracing() error {
	return fmt.Errorf("tracing unavailable: %s", s.reason)
}

func (s *StubProvider) DisableTracing() error {
	return nil
}

func (s *StubProvider) IsTracingEnabled() bool {
	return false
}

func (s *StubProvider) Name() string {
	return "stub"
}
