package exec

import (
	"fmt"
	"sync"
)

// MixPolicy selects how mix domains are provisioned. The choice affects
// scheduling latency only, never observable behavior.
type MixPolicy int

const (
	// MixOnControl runs all mixing on the control domain.
	MixOnControl MixPolicy = iota
	// MixShared runs all devices on one shared mix domain.
	MixShared
	// MixDedicated gives every device its own mix domain.
	MixDedicated
)

// Model owns the process's execution domains: one control domain, one
// blocking-I/O domain, and mix domains per policy.
type Model struct {
	control *Domain
	io      *Domain
	policy  MixPolicy

	mu     sync.Mutex
	shared *Domain
	mixSeq int
}

// NewModel creates the control and I/O domains up front.
func NewModel(policy MixPolicy) *Model {
	return &Model{
		control: NewDomain("control"),
		io:      NewDomain("io"),
		policy:  policy,
	}
}

// Control returns the control domain.
func (m *Model) Control() *Domain { return m.control }

// IO returns the blocking-I/O domain.
func (m *Model) IO() *Domain { return m.io }

// AcquireMixDomain returns the mix domain for a new device. Depending on
// policy this is the control domain, a lazily created shared domain, or a
// fresh dedicated one.
func (m *Model) AcquireMixDomain() *Domain {
	switch m.policy {
	case MixOnControl:
		return m.control
	case MixShared:
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.shared == nil {
			m.shared = NewDomain("mix")
		}
		return m.shared
	default:
		m.mu.Lock()
		defer m.mu.Unlock()
		m.mixSeq++
		return NewDomain(fmt.Sprintf("mix-%d", m.mixSeq))
	}
}

// ReleaseMixDomain shuts a dedicated mix domain down. Shared domains and the
// control domain outlive individual devices and are left running.
func (m *Model) ReleaseMixDomain(d *Domain) {
	if m.policy == MixDedicated && d != nil {
		d.Shutdown()
	}
}

// Shutdown stops every domain the model owns.
func (m *Model) Shutdown() {
	m.mu.Lock()
	shared := m.shared
	m.shared = nil
	m.mu.Unlock()
	if shared != nil {
		shared.Shutdown()
	}
	m.io.Shutdown()
	m.control.Shutdown()
}
