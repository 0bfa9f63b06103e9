package module

import (
	"testing"
)

// stubModule is a minimal double for the Module contract
type stubModule struct {
	name  string
	ports any
}

func (s *stubModule) Ports() any   { return s.ports }
func (s *stubModule) Name() string { return s.name }

// compile-time assertion that the stub satisfies Module
var _ Module = (*stubModule)(nil)

func TestModule_NameAndPorts(t *testing.T) {
	t.Parallel()

	m := &stubModule{name: "dispatch", ports: "bundle"}

	if got := m.Name(); got != "dispatch" {
		t.Fatalf("Name = %q want %q", got, "dispatch")
	}
	if got := m.Ports(); got != "bundle" {
		t.Fatalf("Ports = %v want %q", got, "bundle")
	}
}

func TestModule_NilPortsAllowed(t *testing.T) {
	t.Parallel()

	m := &stubModule{name: "empty"}
	if got := m.Ports(); got != nil {
		t.Fatalf("expected nil ports, got %v", got)
	}
}
