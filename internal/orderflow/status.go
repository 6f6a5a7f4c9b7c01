package orderflow

// Status is a lifecycle state shared by both order families.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusSent       Status = "SENT"
	StatusApproved   Status = "APPROVED"
	StatusCompleted  Status = "COMPLETED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// Machine validates status transitions against a per-family rank table.
// Progression is forward-only; CANCELLED is reachable from any non-terminal
// status and the terminal rank admits nothing but the identity transition.
type Machine struct {
	family   string
	ranks    map[Status]int
	terminal int
}

// NewMachine builds a machine from a rank table. The highest rank is terminal.
func NewMachine(family string, ranks map[Status]int) *Machine {
	terminal := 0
	for _, rank := range ranks {
		if rank > terminal {
			terminal = rank
		}
	}
	return &Machine{family: family, ranks: ranks, terminal: terminal}
}

// PurchaseMachine returns the purchase order family machine.
func PurchaseMachine() *Machine {
	return NewMachine("purchase", map[Status]int{
		StatusDraft:     0,
		StatusSent:      1,
		StatusApproved:  2,
		StatusCompleted: 3,
	})
}

// SalesMachine returns the sales order family machine.
func SalesMachine() *Machine {
	return NewMachine("sales", map[Status]int{
		StatusDraft:      0,
		StatusConfirmed:  1,
		StatusProcessing: 2,
		StatusShipped:    3,
		StatusDelivered:  4,
	})
}

// Family names the order family this machine governs.
func (m *Machine) Family() string {
	return m.family
}

// Known reports whether the status belongs to this family.
func (m *Machine) Known(s Status) bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := m.ranks[s]
	return ok
}

// IsTerminal reports whether no further transition can leave the status.
// Both the top rank and CANCELLED are final.
func (m *Machine) IsTerminal(s Status) bool {
	if s == StatusCancelled {
		return true
	}
	rank, ok := m.ranks[s]
	return ok && rank == m.terminal
}

// CanTransition returns nil when the requested change is legal, otherwise an
// *InvalidTransitionError. The identity transition is always a no-op success.
func (m *Machine) CanTransition(current, requested Status) error {
	if !m.Known(current) || !m.Known(requested) {
		return ErrUnknownStatus
	}
	if requested == current {
		return nil
	}
	if m.IsTerminal(current) {
		return &InvalidTransitionError{Family: m.family, Current: current, Requested: requested}
	}
	if requested == StatusCancelled {
		return nil
	}
	if m.ranks[requested] > m.ranks[current] {
		return nil
	}
	return &InvalidTransitionError{Family: m.family, Current: current, Requested: requested}
}
