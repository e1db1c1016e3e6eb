package events

import "github.com/emojidao/double-market-1155/core/types"

const (
	TypeOwnershipProposed    = "gov.ownership_proposed"
	TypeOwnershipTransferred = "gov.ownership_transferred"
	TypeAdminChanged         = "gov.admin_changed"
	TypePauseChanged         = "gov.pause_changed"
)

// OwnershipProposed is emitted when the owner nominates a pending successor.
type OwnershipProposed struct {
	Owner        [20]byte
	PendingOwner [20]byte
}

func (OwnershipProposed) EventType() string { return TypeOwnershipProposed }

func (e OwnershipProposed) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnershipProposed,
		Attributes: map[string]string{
			"owner":        addrToString(e.Owner),
			"pendingOwner": addrToString(e.PendingOwner),
		},
	}
}

// OwnershipTransferred is emitted when the pending owner accepts, or when the
// owner renounces.
type OwnershipTransferred struct {
	PreviousOwner [20]byte
	NewOwner      [20]byte
}

func (OwnershipTransferred) EventType() string { return TypeOwnershipTransferred }

func (e OwnershipTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnershipTransferred,
		Attributes: map[string]string{
			"previousOwner": addrToString(e.PreviousOwner),
			"newOwner":      addrToString(e.NewOwner),
		},
	}
}

// AdminChanged is emitted when the owner rotates the operational admin.
type AdminChanged struct {
	PreviousAdmin [20]byte
	NewAdmin      [20]byte
}

func (AdminChanged) EventType() string { return TypeAdminChanged }

func (e AdminChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeAdminChanged,
		Attributes: map[string]string{
			"previousAdmin": addrToString(e.PreviousAdmin),
			"newAdmin":      addrToString(e.NewAdmin),
		},
	}
}

// PauseChanged is emitted when the pause guard is toggled.
type PauseChanged struct {
	Caller [20]byte
	Paused bool
}

func (PauseChanged) EventType() string { return TypePauseChanged }

func (e PauseChanged) Event() *types.Event {
	paused := "false"
	if e.Paused {
		paused = "true"
	}
	return &types.Event{
		Type: TypePauseChanged,
		Attributes: map[string]string{
			"caller": addrToString(e.Caller),
			"paused": paused,
		},
	}
}
