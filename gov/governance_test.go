package gov

import (
	"bytes"
	"errors"
	"testing"
)

func addr(fill byte) [20]byte {
	var a [20]byte
	copy(a[:], bytes.Repeat([]byte{fill}, 20))
	return a
}

func TestOwnershipTransferTwoStep(t *testing.T) {
	owner := addr(0x01)
	admin := addr(0x02)
	alice := addr(0x03)
	g := New(owner, admin)

	if err := g.TransferOwnership(admin, alice); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := g.TransferOwnership(owner, alice); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := g.PendingOwner(); got != alice {
		t.Fatalf("pending owner mismatch: %x", got)
	}
	if g.IsOwner(alice) {
		t.Fatalf("pending owner must not hold the role before accepting")
	}
	if err := g.AcceptOwnership(admin); !errors.Is(err, ErrNotPendingOwner) {
		t.Fatalf("expected ErrNotPendingOwner, got %v", err)
	}
	if err := g.AcceptOwnership(alice); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !g.IsOwner(alice) || g.IsOwner(owner) {
		t.Fatalf("ownership did not move to alice")
	}
	if g.PendingOwner() != ([20]byte{}) {
		t.Fatalf("pending owner not cleared")
	}
}

func TestRenounceOwnershipZeroesAllRoles(t *testing.T) {
	owner := addr(0x01)
	admin := addr(0x02)
	g := New(owner, admin)

	if err := g.RenounceOwnership(admin); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := g.RenounceOwnership(owner); err != nil {
		t.Fatalf("renounce: %v", err)
	}
	if g.Owner() != ([20]byte{}) || g.Admin() != ([20]byte{}) || g.PendingOwner() != ([20]byte{}) {
		t.Fatalf("roles not zeroed after renounce")
	}
	if g.IsOwner([20]byte{}) || g.IsAdmin([20]byte{}) {
		t.Fatalf("zero address must never pass role checks")
	}
}

func TestSetAdmin(t *testing.T) {
	owner := addr(0x01)
	admin := addr(0x02)
	alice := addr(0x03)
	g := New(owner, admin)

	if err := g.SetAdmin(admin, alice); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := g.SetAdmin(owner, alice); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	if !g.IsAdmin(alice) {
		t.Fatalf("alice should be admin")
	}
	if !g.IsAdmin(owner) {
		t.Fatalf("owner must count as admin")
	}
	if g.IsAdmin(admin) {
		t.Fatalf("previous admin should have lost the role")
	}
}

func TestPauseGuard(t *testing.T) {
	owner := addr(0x01)
	admin := addr(0x02)
	alice := addr(0x03)
	g := New(owner, admin)

	if err := g.SetPaused(alice, true); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := Guard(g); err != nil {
		t.Fatalf("unexpected guard error while unpaused: %v", err)
	}
	if err := g.SetPaused(admin, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := Guard(g); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	if err := g.SetPaused(owner, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if g.Paused() {
		t.Fatalf("still paused after unpause")
	}
	if err := Guard(nil); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
}
