package gov

import (
	"errors"

	"github.com/emojidao/double-market-1155/core/events"
)

var (
	ErrNotOwner        = errors.New("gov: caller is not the owner")
	ErrNotAdmin        = errors.New("gov: caller is not the owner or admin")
	ErrNotPendingOwner = errors.New("gov: caller is not the pending owner")
)

var zeroAddr [20]byte

// Governance tracks the contract-wide roles gating every mutating entry point:
// a single owner, an operational admin, a pending owner used by the two-step
// ownership transfer, and the pause flag. It is a pure state machine so role
// transitions can be tested without any engine attached.
type Governance struct {
	owner        [20]byte
	admin        [20]byte
	pendingOwner [20]byte
	paused       bool
	emitter      events.Emitter
}

// New constructs governance state with the supplied owner and admin.
func New(owner, admin [20]byte) *Governance {
	return &Governance{owner: owner, admin: admin, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (g *Governance) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		g.emitter = events.NoopEmitter{}
		return
	}
	g.emitter = emitter
}

func (g *Governance) emit(evt events.Event) {
	if g == nil || g.emitter == nil {
		return
	}
	g.emitter.Emit(evt)
}

// Owner returns the current owner address.
func (g *Governance) Owner() [20]byte { return g.owner }

// Admin returns the current admin address.
func (g *Governance) Admin() [20]byte { return g.admin }

// PendingOwner returns the proposed successor, or the zero address when no
// transfer is in flight.
func (g *Governance) PendingOwner() [20]byte { return g.pendingOwner }

// IsOwner reports whether the caller holds the owner role.
func (g *Governance) IsOwner(caller [20]byte) bool {
	return g != nil && g.owner != zeroAddr && caller == g.owner
}

// IsAdmin reports whether the caller holds the admin role. The owner counts as
// admin for every admin-gated operation.
func (g *Governance) IsAdmin(caller [20]byte) bool {
	if g == nil {
		return false
	}
	if g.IsOwner(caller) {
		return true
	}
	return g.admin != zeroAddr && caller == g.admin
}

// Paused reports whether mutating operations are currently suspended.
func (g *Governance) Paused() bool { return g != nil && g.paused }

// IsPaused implements the PauseView interface.
func (g *Governance) IsPaused() bool { return g.Paused() }

// TransferOwnership proposes a successor. The transfer only completes when the
// successor calls AcceptOwnership, so a mistyped address cannot orphan the
// contract.
func (g *Governance) TransferOwnership(caller, newOwner [20]byte) error {
	if !g.IsOwner(caller) {
		return ErrNotOwner
	}
	g.pendingOwner = newOwner
	g.emit(events.OwnershipProposed{Owner: g.owner, PendingOwner: newOwner})
	return nil
}

// AcceptOwnership finalises a pending transfer. Only the proposed successor may
// call it.
func (g *Governance) AcceptOwnership(caller [20]byte) error {
	if g == nil || g.pendingOwner == zeroAddr || caller != g.pendingOwner {
		return ErrNotPendingOwner
	}
	previous := g.owner
	g.owner = g.pendingOwner
	g.pendingOwner = zeroAddr
	g.emit(events.OwnershipTransferred{PreviousOwner: previous, NewOwner: g.owner})
	return nil
}

// RenounceOwnership zeroes the owner, admin and pending owner. After renounce
// no role-gated operation can succeed again.
func (g *Governance) RenounceOwnership(caller [20]byte) error {
	if !g.IsOwner(caller) {
		return ErrNotOwner
	}
	previousOwner := g.owner
	previousAdmin := g.admin
	g.owner = zeroAddr
	g.admin = zeroAddr
	g.pendingOwner = zeroAddr
	g.emit(events.OwnershipTransferred{PreviousOwner: previousOwner, NewOwner: zeroAddr})
	g.emit(events.AdminChanged{PreviousAdmin: previousAdmin, NewAdmin: zeroAddr})
	return nil
}

// SetAdmin rotates the operational admin. Owner only.
func (g *Governance) SetAdmin(caller, admin [20]byte) error {
	if !g.IsOwner(caller) {
		return ErrNotOwner
	}
	previous := g.admin
	g.admin = admin
	g.emit(events.AdminChanged{PreviousAdmin: previous, NewAdmin: admin})
	return nil
}

// SetPaused toggles the pause guard. Owner or admin.
func (g *Governance) SetPaused(caller [20]byte, paused bool) error {
	if !g.IsAdmin(caller) {
		return ErrNotAdmin
	}
	if g.paused == paused {
		return nil
	}
	g.paused = paused
	g.emit(events.PauseChanged{Caller: caller, Paused: paused})
	return nil
}
