package market

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/emojidao/double-market-1155/core/events"
	"github.com/emojidao/double-market-1155/gov"
	"github.com/emojidao/double-market-1155/ledger"
	"github.com/emojidao/double-market-1155/rights"
)

var (
	collection = addr(0xc0)
	lender     = addr(0x10)
	renter     = addr(0x20)
	royaltyTo  = addr(0x30)
	feeTo      = addr(0x40)
)

const tokenID uint64 = 7

var pricePerDay = big.NewInt(1_000_000_000_000_000_000) // 1e18

func listLending(t *testing.T, env *testEnv, qty uint64) *Lending {
	t.Helper()
	env.custody.mint(collection, tokenID, lender, 100)
	lending, err := env.engine.CreateLending(lender, collection, tokenID, qty, env.now+90*86_400, pricePerDay, ledger.Native, [20]byte{})
	if err != nil {
		t.Fatalf("create lending: %v", err)
	}
	return lending
}

func TestCreateLendingValidation(t *testing.T) {
	env := newTestEnv(t)
	env.custody.mint(collection, tokenID, lender, 10)
	expiry := env.now + 86_400

	if _, err := env.engine.CreateLending(lender, collection, tokenID, 0, expiry, pricePerDay, ledger.Native, [20]byte{}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero quantity, got %v", err)
	}
	if _, err := env.engine.CreateLending(lender, collection, tokenID, 5, env.now-1, pricePerDay, ledger.Native, [20]byte{}); !errors.Is(err, ErrInvalidExpiry) {
		t.Fatalf("expected ErrInvalidExpiry for past expiry, got %v", err)
	}
	if _, err := env.engine.CreateLending(lender, collection, tokenID, 5, env.now+DefaultMaxIndate+1, pricePerDay, ledger.Native, [20]byte{}); !errors.Is(err, ErrInvalidExpiry) {
		t.Fatalf("expected ErrInvalidExpiry beyond horizon, got %v", err)
	}
	if _, err := env.engine.CreateLending(lender, collection, tokenID, 5, expiry, big.NewInt(0), ledger.Native, [20]byte{}); !errors.Is(err, ErrPriceOutOfRange) {
		t.Fatalf("expected ErrPriceOutOfRange for zero price, got %v", err)
	}
	overMax := new(big.Int).Add(MaxPrice, big.NewInt(1))
	if _, err := env.engine.CreateLending(lender, collection, tokenID, 5, expiry, overMax, ledger.Native, [20]byte{}); !errors.Is(err, ErrPriceOutOfRange) {
		t.Fatalf("expected ErrPriceOutOfRange above MaxPrice, got %v", err)
	}
	if _, err := env.engine.CreateLending(renter, collection, tokenID, 5, expiry, pricePerDay, ledger.Native, [20]byte{}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for stranger, got %v", err)
	}
	if _, err := env.engine.CreateLending(lender, collection, tokenID, 11, expiry, pricePerDay, ledger.Native, [20]byte{}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for quantity above balance, got %v", err)
	}

	lending, err := env.engine.CreateLending(lender, collection, tokenID, 5, expiry, pricePerDay, ledger.Native, [20]byte{})
	if err != nil {
		t.Fatalf("create lending: %v", err)
	}
	if lending.ID != LendingID(collection, tokenID, lender) {
		t.Fatalf("unexpected lending id")
	}
	if lending.Amount != 5 || lending.Frozen != 0 {
		t.Fatalf("unexpected lending balances: amount %d frozen %d", lending.Amount, lending.Frozen)
	}
	if got := env.emitter.countOf(events.TypeLendingCreated); got != 1 {
		t.Fatalf("expected one creation event, got %d", got)
	}
}

func TestRentSettlesProceeds(t *testing.T) {
	env := newTestEnv(t)
	env.registerCollection(t, collection, royaltyTo)
	if err := env.engine.SetMarketFee(env.admin, 1000); err != nil {
		t.Fatalf("set market fee: %v", err)
	}
	listLending(t, env, 50)

	total := new(big.Int).Mul(pricePerDay, big.NewInt(10)) // 10 units, 1 cycle
	env.fund(t, renter, ledger.Native, total)

	lendingID := LendingID(collection, tokenID, lender)
	renting, err := env.engine.Rent(renter, lendingID, 10, 86_400, renter, ledger.Native, pricePerDay)
	if err != nil {
		t.Fatalf("rent: %v", err)
	}

	// 10% market fee and 15% royalty on 10 * 1e18.
	wantFee := mustBig(t, "1000000000000000000")
	wantRoyalty := mustBig(t, "1500000000000000000")
	wantLender := mustBig(t, "7500000000000000000")

	if got := env.balance(t, renter, ledger.Native); got.Sign() != 0 {
		t.Fatalf("renter should be fully debited, has %s", got)
	}
	if got := env.balance(t, lender, ledger.Native); got.Cmp(wantLender) != 0 {
		t.Fatalf("lender proceeds: got %s want %s", got, wantLender)
	}
	vaultTotal := new(big.Int).Add(wantFee, wantRoyalty)
	if got := env.balance(t, env.vault, ledger.Native); got.Cmp(vaultTotal) != 0 {
		t.Fatalf("vault custody: got %s want %s", got, vaultTotal)
	}
	feePool, err := env.ledger.PoolBalanceOf(ledger.MarketFeePool, ledger.Native)
	if err != nil {
		t.Fatalf("fee pool: %v", err)
	}
	if feePool.Cmp(wantFee) != 0 {
		t.Fatalf("fee pool: got %s want %s", feePool, wantFee)
	}
	royaltyPool, err := env.ledger.PoolBalanceOf(ledger.RoyaltyPool(collection), ledger.Native)
	if err != nil {
		t.Fatalf("royalty pool: %v", err)
	}
	if royaltyPool.Cmp(wantRoyalty) != 0 {
		t.Fatalf("royalty pool: got %s want %s", royaltyPool, wantRoyalty)
	}

	// Asset custody moved to the engine and the lending froze the quantity.
	if got, _ := env.custody.BalanceOf(collection, env.marketAddr, tokenID); got != 10 {
		t.Fatalf("market custody: got %d want 10", got)
	}
	if got, _ := env.custody.BalanceOf(collection, lender, tokenID); got != 90 {
		t.Fatalf("lender holdings: got %d want 90", got)
	}
	lending, err := env.engine.LendingOf(lendingID)
	if err != nil {
		t.Fatalf("lending of: %v", err)
	}
	if lending.Frozen != 10 || lending.Remaining() != 40 {
		t.Fatalf("lending balances: frozen %d remaining %d", lending.Frozen, lending.Remaining())
	}

	record, err := env.registry.RecordOf(renting.RecordID)
	if err != nil {
		t.Fatalf("record of: %v", err)
	}
	if record.User != renter || record.Amount != 10 || record.Expiry != env.now+86_400 {
		t.Fatalf("unexpected record: %+v", record)
	}
	usable, err := env.registry.UsableBalance(renter, collection, tokenID, env.now)
	if err != nil {
		t.Fatalf("usable balance: %v", err)
	}
	if usable != 10 {
		t.Fatalf("usable balance: got %d want 10", usable)
	}
}

func TestRentValidation(t *testing.T) {
	env := newTestEnv(t)
	env.registerCollection(t, collection, royaltyTo)
	listLending(t, env, 20)
	lendingID := LendingID(collection, tokenID, lender)
	funds := new(big.Int).Mul(pricePerDay, big.NewInt(1000))
	env.fund(t, renter, ledger.Native, funds)

	cases := []struct {
		name string
		run  func() error
		want error
	}{
		{"zero quantity", func() error {
			_, err := env.engine.Rent(renter, lendingID, 0, 86_400, renter, ledger.Native, pricePerDay)
			return err
		}, ErrInvalidAmount},
		{"over remaining", func() error {
			_, err := env.engine.Rent(renter, lendingID, 21, 86_400, renter, ledger.Native, pricePerDay)
			return err
		}, ErrInsufficientRemaining},
		{"wrong currency", func() error {
			other := ledger.Currency{1}
			_, err := env.engine.Rent(renter, lendingID, 1, 86_400, renter, other, pricePerDay)
			return err
		}, ErrPaymentMismatch},
		{"stale price", func() error {
			_, err := env.engine.Rent(renter, lendingID, 1, 86_400, renter, ledger.Native, big.NewInt(1))
			return err
		}, ErrStalePrice},
		{"fractional cycle", func() error {
			_, err := env.engine.Rent(renter, lendingID, 1, 86_400+1, renter, ledger.Native, pricePerDay)
			return err
		}, ErrInvalidDuration},
		{"zero duration", func() error {
			_, err := env.engine.Rent(renter, lendingID, 1, 0, renter, ledger.Native, pricePerDay)
			return err
		}, ErrInvalidDuration},
		{"over collection maximum", func() error {
			_, err := env.engine.Rent(renter, lendingID, 1, 31*86_400, renter, ledger.Native, pricePerDay)
			return err
		}, ErrInvalidDuration},
		{"zero recipient", func() error {
			_, err := env.engine.Rent(renter, lendingID, 1, 86_400, [20]byte{}, ledger.Native, pricePerDay)
			return err
		}, ErrInvalidRenter},
		{"unknown lending", func() error {
			_, err := env.engine.Rent(renter, [32]byte{0xde, 0xad}, 1, 86_400, renter, ledger.Native, pricePerDay)
			return err
		}, ErrInvalidOrder},
	}
	for _, tc := range cases {
		if err := tc.run(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	// No failed attempt moved money or assets.
	if got := env.balance(t, renter, ledger.Native); got.Cmp(funds) != 0 {
		t.Fatalf("renter balance changed on failed rents: %s", got)
	}
	if env.custody.transfers != 0 {
		t.Fatalf("failed rents moved assets: %d transfers", env.custody.transfers)
	}
}

func TestRentPastLendingExpiry(t *testing.T) {
	env := newTestEnv(t)
	env.custody.mint(collection, tokenID, lender, 10)
	expiry := env.now + 86_400
	if _, err := env.engine.CreateLending(lender, collection, tokenID, 10, expiry, pricePerDay, ledger.Native, [20]byte{}); err != nil {
		t.Fatalf("create lending: %v", err)
	}
	env.fund(t, renter, ledger.Native, new(big.Int).Mul(pricePerDay, big.NewInt(10)))
	lendingID := LendingID(collection, tokenID, lender)
	if _, err := env.engine.Rent(renter, lendingID, 1, 2*86_400, renter, ledger.Native, pricePerDay); !errors.Is(err, ErrInvalidExpiry) {
		t.Fatalf("expected ErrInvalidExpiry for rental past listing expiry, got %v", err)
	}
}

func TestRentInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	listLending(t, env, 20)
	lendingID := LendingID(collection, tokenID, lender)
	short := new(big.Int).Sub(new(big.Int).Mul(pricePerDay, big.NewInt(5)), big.NewInt(1))
	env.fund(t, renter, ledger.Native, short)
	if _, err := env.engine.Rent(renter, lendingID, 5, 86_400, renter, ledger.Native, pricePerDay); !errors.Is(err, ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch for underfunded renter, got %v", err)
	}
	if got := env.balance(t, renter, ledger.Native); got.Cmp(short) != 0 {
		t.Fatalf("failed rent touched renter balance: %s", got)
	}
	if env.custody.transfers != 0 {
		t.Fatalf("failed rent moved assets")
	}
}

func TestRentPrivateLending(t *testing.T) {
	env := newTestEnv(t)
	env.custody.mint(collection, tokenID, lender, 10)
	designated := addr(0x66)
	if _, err := env.engine.CreateLending(lender, collection, tokenID, 10, env.now+30*86_400, pricePerDay, ledger.Native, designated); err != nil {
		t.Fatalf("create private lending: %v", err)
	}
	lendingID := LendingID(collection, tokenID, lender)
	env.fund(t, renter, ledger.Native, new(big.Int).Mul(pricePerDay, big.NewInt(10)))

	if _, err := env.engine.Rent(renter, lendingID, 1, 86_400, renter, ledger.Native, pricePerDay); !errors.Is(err, ErrInvalidRenter) {
		t.Fatalf("expected ErrInvalidRenter for undesignated recipient, got %v", err)
	}
	// Anyone may pay as long as the rights land on the designated renter.
	if _, err := env.engine.Rent(renter, lendingID, 1, 86_400, designated, ledger.Native, pricePerDay); err != nil {
		t.Fatalf("rent to designated renter: %v", err)
	}
}

func TestRelistPreservesFrozen(t *testing.T) {
	env := newTestEnv(t)
	listLending(t, env, 20)
	lendingID := LendingID(collection, tokenID, lender)
	env.fund(t, renter, ledger.Native, new(big.Int).Mul(pricePerDay, big.NewInt(100)))
	if _, err := env.engine.Rent(renter, lendingID, 8, 86_400, renter, ledger.Native, pricePerDay); err != nil {
		t.Fatalf("rent: %v", err)
	}

	newPrice := new(big.Int).Mul(pricePerDay, big.NewInt(2))
	relisted, err := env.engine.CreateLending(lender, collection, tokenID, 30, env.now+60*86_400, newPrice, ledger.Native, [20]byte{})
	if err != nil {
		t.Fatalf("relist: %v", err)
	}
	if relisted.Amount != 50 {
		t.Fatalf("relist should accumulate amount: got %d want 50", relisted.Amount)
	}
	if relisted.Frozen != 8 {
		t.Fatalf("relist should preserve frozen: got %d want 8", relisted.Frozen)
	}
	if relisted.PricePerCycle.Cmp(newPrice) != 0 {
		t.Fatalf("relist should reprice: got %s", relisted.PricePerCycle)
	}

	// The stale quote now fails and the new one settles.
	if _, err := env.engine.Rent(renter, lendingID, 1, 86_400, renter, ledger.Native, pricePerDay); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice after reprice, got %v", err)
	}
	if _, err := env.engine.Rent(renter, lendingID, 1, 86_400, renter, ledger.Native, newPrice); err != nil {
		t.Fatalf("rent at new price: %v", err)
	}
}

func TestCancelLending(t *testing.T) {
	env := newTestEnv(t)
	listLending(t, env, 20)
	lendingID := LendingID(collection, tokenID, lender)

	if err := env.engine.CancelLending(renter, lendingID); !errors.Is(err, ErrNotLender) {
		t.Fatalf("expected ErrNotLender, got %v", err)
	}
	if err := env.engine.CancelLending(lender, lendingID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	lending, err := env.engine.LendingOf(lendingID)
	if err != nil {
		t.Fatalf("lending of: %v", err)
	}
	if lending.Expiry != 0 {
		t.Fatalf("cancel should zero expiry, got %d", lending.Expiry)
	}
	env.fund(t, renter, ledger.Native, new(big.Int).Mul(pricePerDay, big.NewInt(10)))
	if _, err := env.engine.Rent(renter, lendingID, 1, 86_400, renter, ledger.Native, pricePerDay); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder renting a cancelled lending, got %v", err)
	}
}

func TestClearRentingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	listLending(t, env, 20)
	lendingID := LendingID(collection, tokenID, lender)
	env.fund(t, renter, ledger.Native, new(big.Int).Mul(pricePerDay, big.NewInt(10)))
	renting, err := env.engine.Rent(renter, lendingID, 6, 86_400, renter, ledger.Native, pricePerDay)
	if err != nil {
		t.Fatalf("rent: %v", err)
	}

	if err := env.engine.ClearRenting(renting.ID); !errors.Is(err, rights.ErrNotYetExpired) {
		t.Fatalf("expected ErrNotYetExpired clearing early, got %v", err)
	}

	env.advance(86_400)
	if err := env.engine.ClearRenting(renting.ID); err != nil {
		t.Fatalf("clear renting: %v", err)
	}
	if got, _ := env.custody.BalanceOf(collection, lender, tokenID); got != 100 {
		t.Fatalf("custody should return to lender: got %d want 100", got)
	}
	if got, _ := env.custody.BalanceOf(collection, env.marketAddr, tokenID); got != 0 {
		t.Fatalf("market custody should be empty: got %d", got)
	}
	lending, err := env.engine.LendingOf(lendingID)
	if err != nil {
		t.Fatalf("lending of: %v", err)
	}
	if lending.Frozen != 0 {
		t.Fatalf("clear should unfreeze: got %d", lending.Frozen)
	}
	if _, err := env.registry.RecordOf(renting.RecordID); !errors.Is(err, rights.ErrNonexistentRecord) {
		t.Fatalf("record should be tombstoned, got %v", err)
	}
	if err := env.engine.ClearRenting(renting.ID); !errors.Is(err, ErrNonexistentRenting) {
		t.Fatalf("expected ErrNonexistentRenting on double clear, got %v", err)
	}
	if got := env.emitter.countOf(events.TypeRentingCleared); got != 1 {
		t.Fatalf("expected exactly one clear event, got %d", got)
	}
}

func TestSlotLimitChecksBeforeCustodyMove(t *testing.T) {
	env := newTestEnv(t)
	listLending(t, env, 50)
	lendingID := LendingID(collection, tokenID, lender)
	env.fund(t, renter, ledger.Native, new(big.Int).Mul(pricePerDay, big.NewInt(1000)))

	for i := 0; i < rights.DefaultSlotLimit; i++ {
		if _, err := env.engine.Rent(renter, lendingID, 1, 86_400, renter, ledger.Native, pricePerDay); err != nil {
			t.Fatalf("rent %d: %v", i, err)
		}
	}
	transfersBefore := env.custody.transfers
	balanceBefore := env.balance(t, renter, ledger.Native)
	if _, err := env.engine.Rent(renter, lendingID, 1, 86_400, renter, ledger.Native, pricePerDay); !errors.Is(err, rights.ErrTooManyRecords) {
		t.Fatalf("expected ErrTooManyRecords, got %v", err)
	}
	if env.custody.transfers != transfersBefore {
		t.Fatalf("slot limit breach still moved assets")
	}
	if got := env.balance(t, renter, ledger.Native); got.Cmp(balanceBefore) != 0 {
		t.Fatalf("slot limit breach still moved funds")
	}
}

func TestClaimMarketFeeAndRoyalty(t *testing.T) {
	env := newTestEnv(t)
	env.registerCollection(t, collection, royaltyTo)
	if err := env.engine.SetMarketFee(env.admin, 1000); err != nil {
		t.Fatalf("set market fee: %v", err)
	}
	if err := env.engine.SetMarketBeneficiary(env.owner, feeTo); err != nil {
		t.Fatalf("set beneficiary: %v", err)
	}
	listLending(t, env, 50)
	lendingID := LendingID(collection, tokenID, lender)
	total := new(big.Int).Mul(pricePerDay, big.NewInt(10))
	env.fund(t, renter, ledger.Native, total)
	if _, err := env.engine.Rent(renter, lendingID, 10, 86_400, renter, ledger.Native, pricePerDay); err != nil {
		t.Fatalf("rent: %v", err)
	}

	if err := env.engine.ClaimMarketFee(renter, ledger.Native); !errors.Is(err, ErrNotBeneficiary) {
		t.Fatalf("expected ErrNotBeneficiary, got %v", err)
	}
	if err := env.engine.ClaimMarketFee(feeTo, ledger.Native); err != nil {
		t.Fatalf("claim market fee: %v", err)
	}
	wantFee := mustBig(t, "1000000000000000000")
	if got := env.balance(t, feeTo, ledger.Native); got.Cmp(wantFee) != 0 {
		t.Fatalf("fee claim: got %s want %s", got, wantFee)
	}
	// Second claim finds an empty pool and pays nothing.
	if err := env.engine.ClaimMarketFee(feeTo, ledger.Native); err != nil {
		t.Fatalf("empty claim: %v", err)
	}
	if got := env.balance(t, feeTo, ledger.Native); got.Cmp(wantFee) != 0 {
		t.Fatalf("empty claim changed balance: %s", got)
	}
	if got := env.emitter.countOf(events.TypeMarketFeeClaimed); got != 1 {
		t.Fatalf("expected one fee claim event, got %d", got)
	}

	if err := env.engine.ClaimRoyalty(feeTo, collection, ledger.Native); !errors.Is(err, ErrNotBeneficiary) {
		t.Fatalf("expected ErrNotBeneficiary for royalty, got %v", err)
	}
	if err := env.engine.ClaimRoyalty(royaltyTo, collection, ledger.Native); err != nil {
		t.Fatalf("claim royalty: %v", err)
	}
	wantRoyalty := mustBig(t, "1500000000000000000")
	if got := env.balance(t, royaltyTo, ledger.Native); got.Cmp(wantRoyalty) != 0 {
		t.Fatalf("royalty claim: got %s want %s", got, wantRoyalty)
	}
	// Vault emptied once both pools were swept.
	if got := env.balance(t, env.vault, ledger.Native); got.Sign() != 0 {
		t.Fatalf("vault should be empty after claims: %s", got)
	}
}

func TestSetMarketFeeGovernance(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetMarketFee(renter, 100); !errors.Is(err, gov.ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := env.engine.SetMarketFee(env.admin, 10_001); !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("expected ErrFeeTooHigh, got %v", err)
	}
	if err := env.engine.SetMarketFee(env.owner, 250); err != nil {
		t.Fatalf("owner should pass admin check: %v", err)
	}
	if got := env.engine.MarketFeeBps(); got != 250 {
		t.Fatalf("fee not applied: %d", got)
	}
	if err := env.engine.SetMarketBeneficiary(env.admin, feeTo); !errors.Is(err, gov.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner setting beneficiary, got %v", err)
	}
}

func TestPauseGatesMutations(t *testing.T) {
	env := newTestEnv(t)
	listLending(t, env, 20)
	lendingID := LendingID(collection, tokenID, lender)
	env.fund(t, renter, ledger.Native, new(big.Int).Mul(pricePerDay, big.NewInt(10)))
	renting, err := env.engine.Rent(renter, lendingID, 1, 86_400, renter, ledger.Native, pricePerDay)
	if err != nil {
		t.Fatalf("rent: %v", err)
	}
	if err := env.gov.SetPaused(env.admin, true); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if _, err := env.engine.CreateLending(lender, collection, tokenID, 1, env.now+86_400, pricePerDay, ledger.Native, [20]byte{}); !errors.Is(err, gov.ErrPaused) {
		t.Fatalf("create while paused: %v", err)
	}
	if err := env.engine.CancelLending(lender, lendingID); !errors.Is(err, gov.ErrPaused) {
		t.Fatalf("cancel while paused: %v", err)
	}
	if _, err := env.engine.Rent(renter, lendingID, 1, 86_400, renter, ledger.Native, pricePerDay); !errors.Is(err, gov.ErrPaused) {
		t.Fatalf("rent while paused: %v", err)
	}
	if err := env.engine.ClearRenting(renting.ID); !errors.Is(err, gov.ErrPaused) {
		t.Fatalf("clear while paused: %v", err)
	}
	if err := env.engine.ClaimMarketFee(feeTo, ledger.Native); !errors.Is(err, gov.ErrPaused) {
		t.Fatalf("claim while paused: %v", err)
	}

	// Reads stay open while paused.
	if _, err := env.engine.LendingOf(lendingID); err != nil {
		t.Fatalf("read while paused: %v", err)
	}

	if err := env.gov.SetPaused(env.admin, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	env.advance(86_400)
	if err := env.engine.ClearRenting(renting.ID); err != nil {
		t.Fatalf("clear after unpause: %v", err)
	}
}

func TestLazyExpiryWithoutSweep(t *testing.T) {
	env := newTestEnv(t)
	listLending(t, env, 20)
	lendingID := LendingID(collection, tokenID, lender)
	env.fund(t, renter, ledger.Native, new(big.Int).Mul(pricePerDay, big.NewInt(10)))
	if _, err := env.engine.Rent(renter, lendingID, 5, 86_400, renter, ledger.Native, pricePerDay); err != nil {
		t.Fatalf("rent: %v", err)
	}

	usable, err := env.registry.UsableBalance(renter, collection, tokenID, env.now)
	if err != nil {
		t.Fatalf("usable: %v", err)
	}
	if usable != 5 {
		t.Fatalf("usable before expiry: got %d want 5", usable)
	}
	env.advance(86_400)
	usable, err = env.registry.UsableBalance(renter, collection, tokenID, env.now)
	if err != nil {
		t.Fatalf("usable: %v", err)
	}
	if usable != 0 {
		t.Fatalf("usable after expiry without sweep: got %d want 0", usable)
	}
	// The frozen quantity stays until an explicit clear runs.
	lending, err := env.engine.LendingOf(lendingID)
	if err != nil {
		t.Fatalf("lending of: %v", err)
	}
	if lending.Frozen != 5 {
		t.Fatalf("frozen should persist until sweep: got %d", lending.Frozen)
	}
}

func TestRentRejectsWrappedDuration(t *testing.T) {
	env := newTestEnv(t)
	listLending(t, env, 10)
	lendingID := LendingID(collection, tokenID, lender)

	// Enough to cover the astronomical total so the balance check is not the
	// reason the rent fails.
	funds := new(big.Int).Lsh(big.NewInt(1), 130)
	env.fund(t, renter, ledger.Native, funds)

	duration := int64((math.MaxInt64 / 86_400) * 86_400)
	if _, err := env.engine.Rent(renter, lendingID, 1, duration, renter, ledger.Native, pricePerDay); !errors.Is(err, ErrInvalidExpiry) {
		t.Fatalf("wrapped duration: got %v want ErrInvalidExpiry", err)
	}
	if env.custody.transfers != 0 {
		t.Fatalf("wrapped duration moved assets: %d transfers", env.custody.transfers)
	}
	if got := env.balance(t, renter, ledger.Native); got.Cmp(funds) != 0 {
		t.Fatalf("wrapped duration moved funds: got %s want %s", got, funds)
	}
	available, err := env.registry.Available(collection, tokenID, lender)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if available != 0 {
		t.Fatalf("wrapped duration left a deposit behind: %d", available)
	}
	lending, err := env.engine.LendingOf(lendingID)
	if err != nil {
		t.Fatalf("lending of: %v", err)
	}
	if lending.Frozen != 0 {
		t.Fatalf("wrapped duration froze quantity: %d", lending.Frozen)
	}
}

func TestPoolGaugesTrackAccrualsAndClaims(t *testing.T) {
	env := newTestEnv(t)
	env.registerCollection(t, collection, royaltyTo)
	if err := env.engine.SetMarketFee(env.admin, 1000); err != nil {
		t.Fatalf("set market fee: %v", err)
	}
	if err := env.engine.SetMarketBeneficiary(env.owner, feeTo); err != nil {
		t.Fatalf("set beneficiary: %v", err)
	}
	metrics := newRecordingMetrics()
	env.engine.SetMetrics(metrics)
	listLending(t, env, 50)

	total := new(big.Int).Mul(pricePerDay, big.NewInt(10))
	env.fund(t, renter, ledger.Native, total)
	if _, err := env.engine.Rent(renter, LendingID(collection, tokenID, lender), 10, 86_400, renter, ledger.Native, pricePerDay); err != nil {
		t.Fatalf("rent: %v", err)
	}

	feeKey := string(ledger.MarketFeePool) + "/" + ledger.Native.Key()
	royaltyKey := string(ledger.RoyaltyPool(collection)) + "/" + ledger.Native.Key()
	if got := metrics.pools[feeKey]; got == nil || got.Cmp(mustBig(t, "1000000000000000000")) != 0 {
		t.Fatalf("fee pool gauge after rent: got %v", got)
	}
	if got := metrics.pools[royaltyKey]; got == nil || got.Cmp(mustBig(t, "1500000000000000000")) != 0 {
		t.Fatalf("royalty pool gauge after rent: got %v", got)
	}

	if err := env.engine.ClaimMarketFee(feeTo, ledger.Native); err != nil {
		t.Fatalf("claim market fee: %v", err)
	}
	if got := metrics.pools[feeKey]; got == nil || got.Sign() != 0 {
		t.Fatalf("fee pool gauge after claim: got %v", got)
	}
	if err := env.engine.ClaimRoyalty(royaltyTo, collection, ledger.Native); err != nil {
		t.Fatalf("claim royalty: %v", err)
	}
	if got := metrics.pools[royaltyKey]; got == nil || got.Sign() != 0 {
		t.Fatalf("royalty pool gauge after claim: got %v", got)
	}
	if got := metrics.outcomes["rent:ok"]; got != 1 {
		t.Fatalf("rent outcome count: got %d want 1", got)
	}
}
