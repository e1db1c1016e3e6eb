package market

import (
	"math/big"
	"testing"

	"github.com/emojidao/double-market-1155/core/events"
	"github.com/emojidao/double-market-1155/core/types"
	"github.com/emojidao/double-market-1155/gov"
	"github.com/emojidao/double-market-1155/ledger"
	"github.com/emojidao/double-market-1155/rentalconfig"
	"github.com/emojidao/double-market-1155/rights"
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

type assetKey struct {
	collection [20]byte
	tokenID    uint64
	holder     [20]byte
}

type mockCustody struct {
	balances     map[assetKey]uint64
	failTransfer bool
	transfers    int
}

func newMockCustody() *mockCustody {
	return &mockCustody{balances: make(map[assetKey]uint64)}
}

func (m *mockCustody) mint(collection [20]byte, tokenID uint64, holder [20]byte, qty uint64) {
	m.balances[assetKey{collection, tokenID, holder}] += qty
}

func (m *mockCustody) Transfer(collection [20]byte, from, to [20]byte, tokenID uint64, qty uint64) error {
	if m.failTransfer {
		return errTransferRejected
	}
	fromKey := assetKey{collection, tokenID, from}
	if m.balances[fromKey] < qty {
		return errTransferRejected
	}
	m.balances[fromKey] -= qty
	m.balances[assetKey{collection, tokenID, to}] += qty
	m.transfers++
	return nil
}

func (m *mockCustody) BalanceOf(collection [20]byte, holder [20]byte, tokenID uint64) (uint64, error) {
	return m.balances[assetKey{collection, tokenID, holder}], nil
}

func (m *mockCustody) IsApprovedOrOwner(collection [20]byte, caller [20]byte, tokenID uint64) (bool, error) {
	return m.balances[assetKey{collection, tokenID, caller}] > 0, nil
}

var errTransferRejected = transferError("transfer rejected")

type transferError string

func (e transferError) Error() string { return string(e) }

type mockLedgerState struct {
	accounts map[[20]byte]*types.Account
	pools    map[ledger.PoolKey]map[string]*big.Int
}

func newMockLedgerState() *mockLedgerState {
	return &mockLedgerState{
		accounts: make(map[[20]byte]*types.Account),
		pools:    make(map[ledger.PoolKey]map[string]*big.Int),
	}
}

func (m *mockLedgerState) GetAccount(a [20]byte) (*types.Account, error) {
	if acc, ok := m.accounts[a]; ok {
		return acc.Clone(), nil
	}
	return types.NewAccount(), nil
}

func (m *mockLedgerState) PutAccount(a [20]byte, acc *types.Account) error {
	m.accounts[a] = acc.Clone()
	return nil
}

func (m *mockLedgerState) PoolBalance(pool ledger.PoolKey, currency string) (*big.Int, error) {
	if byCur, ok := m.pools[pool]; ok {
		if amount, ok := byCur[currency]; ok {
			return new(big.Int).Set(amount), nil
		}
	}
	return big.NewInt(0), nil
}

func (m *mockLedgerState) SetPoolBalance(pool ledger.PoolKey, currency string, amount *big.Int) error {
	byCur, ok := m.pools[pool]
	if !ok {
		byCur = make(map[string]*big.Int)
		m.pools[pool] = byCur
	}
	byCur[currency] = new(big.Int).Set(amount)
	return nil
}

type depositKey struct {
	collection [20]byte
	tokenID    uint64
	owner      [20]byte
}

type userKey struct {
	user       [20]byte
	collection [20]byte
	tokenID    uint64
}

type mockRightsState struct {
	records     map[uint64]*rights.Record
	deposits    map[depositKey]*rights.Deposit
	userRecords map[userKey][]uint64
	nextID      uint64
}

func newMockRightsState() *mockRightsState {
	return &mockRightsState{
		records:     make(map[uint64]*rights.Record),
		deposits:    make(map[depositKey]*rights.Deposit),
		userRecords: make(map[userKey][]uint64),
	}
}

func (m *mockRightsState) RecordGet(id uint64) (*rights.Record, bool, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *mockRightsState) RecordPut(record *rights.Record) error {
	m.records[record.ID] = record.Clone()
	return nil
}

func (m *mockRightsState) RecordDelete(id uint64) error {
	delete(m.records, id)
	return nil
}

func (m *mockRightsState) NextRecordID() (uint64, error) {
	m.nextID++
	return m.nextID, nil
}

func (m *mockRightsState) DepositGet(collection [20]byte, tokenID uint64, owner [20]byte) (*rights.Deposit, error) {
	dep, ok := m.deposits[depositKey{collection, tokenID, owner}]
	if !ok {
		return nil, nil
	}
	clone := *dep
	return &clone, nil
}

func (m *mockRightsState) DepositPut(collection [20]byte, tokenID uint64, owner [20]byte, dep *rights.Deposit) error {
	clone := *dep
	m.deposits[depositKey{collection, tokenID, owner}] = &clone
	return nil
}

func (m *mockRightsState) UserRecordsGet(user [20]byte, collection [20]byte, tokenID uint64) ([]uint64, error) {
	return append([]uint64(nil), m.userRecords[userKey{user, collection, tokenID}]...), nil
}

func (m *mockRightsState) UserRecordsPut(user [20]byte, collection [20]byte, tokenID uint64, ids []uint64) error {
	m.userRecords[userKey{user, collection, tokenID}] = append([]uint64(nil), ids...)
	return nil
}

type mockConfigState struct {
	configs map[[20]byte]*rentalconfig.Config
}

func newMockConfigState() *mockConfigState {
	return &mockConfigState{configs: make(map[[20]byte]*rentalconfig.Config)}
}

func (m *mockConfigState) ConfigGet(collection [20]byte) (*rentalconfig.Config, bool, error) {
	cfg, ok := m.configs[collection]
	if !ok {
		return nil, false, nil
	}
	clone := *cfg
	return &clone, true, nil
}

func (m *mockConfigState) ConfigPut(cfg *rentalconfig.Config) error {
	clone := *cfg
	m.configs[cfg.Collection] = &clone
	return nil
}

type orderKey struct {
	collection [20]byte
	tokenID    uint64
}

type mockMarketState struct {
	lendings   map[[32]byte]*Lending
	rentings   map[uint64]*Renting
	orders     map[orderKey]*LendOrder
	rentals    map[uint64]*Rental
	nextRentID uint64
}

func newMockMarketState() *mockMarketState {
	return &mockMarketState{
		lendings: make(map[[32]byte]*Lending),
		rentings: make(map[uint64]*Renting),
		orders:   make(map[orderKey]*LendOrder),
		rentals:  make(map[uint64]*Rental),
	}
}

func (m *mockMarketState) LendingGet(id [32]byte) (*Lending, bool, error) {
	lending, ok := m.lendings[id]
	if !ok {
		return nil, false, nil
	}
	return lending.Clone(), true, nil
}

func (m *mockMarketState) LendingPut(l *Lending) error {
	m.lendings[l.ID] = l.Clone()
	return nil
}

func (m *mockMarketState) RentingGet(id uint64) (*Renting, bool, error) {
	renting, ok := m.rentings[id]
	if !ok {
		return nil, false, nil
	}
	return renting.Clone(), true, nil
}

func (m *mockMarketState) RentingPut(r *Renting) error {
	m.rentings[r.ID] = r.Clone()
	return nil
}

func (m *mockMarketState) RentingDelete(id uint64) error {
	delete(m.rentings, id)
	return nil
}

func (m *mockMarketState) NextRentingID() (uint64, error) {
	m.nextRentID++
	return m.nextRentID, nil
}

func (m *mockMarketState) OrderGet(collection [20]byte, tokenID uint64) (*LendOrder, bool, error) {
	order, ok := m.orders[orderKey{collection, tokenID}]
	if !ok {
		return nil, false, nil
	}
	return order.Clone(), true, nil
}

func (m *mockMarketState) OrderPut(o *LendOrder) error {
	m.orders[orderKey{o.Collection, o.TokenID}] = o.Clone()
	return nil
}

func (m *mockMarketState) RentalGet(id uint64) (*Rental, bool, error) {
	rental, ok := m.rentals[id]
	if !ok {
		return nil, false, nil
	}
	return rental.Clone(), true, nil
}

func (m *mockMarketState) RentalPut(r *Rental) error {
	m.rentals[r.ID] = r.Clone()
	return nil
}

func (m *mockMarketState) RentalDelete(id uint64) error {
	delete(m.rentals, id)
	return nil
}

func (m *mockMarketState) NextRentalID() (uint64, error) {
	m.nextRentID++
	return m.nextRentID, nil
}

type recordingMetrics struct {
	outcomes map[string]int
	pools    map[string]*big.Int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: make(map[string]int), pools: make(map[string]*big.Int)}
}

func (m *recordingMetrics) ObserveSettlement(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.outcomes[op+":"+outcome]++
}

func (m *recordingMetrics) SetPoolBalance(pool, currency string, balance *big.Int) {
	m.pools[pool+"/"+currency] = new(big.Int).Set(balance)
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *capturingEmitter) countOf(eventType string) int {
	var n int
	for _, evt := range c.events {
		if evt.EventType() == eventType {
			n++
		}
	}
	return n
}

// testEnv wires a full market stack over in-memory mocks with a controllable
// clock.
type testEnv struct {
	engine   *Engine
	book     *OrderBook
	ledger   *ledger.Ledger
	registry *rights.Registry
	users    *rights.SingleUser
	custody  *mockCustody
	configs  *rentalconfig.Store
	gov      *gov.Governance
	emitter  *capturingEmitter
	state    *mockMarketState
	now      int64

	owner      [20]byte
	admin      [20]byte
	superAdmin [20]byte
	vault      [20]byte
	marketAddr [20]byte
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		now:        1_700_000_000,
		owner:      addr(0x01),
		admin:      addr(0x02),
		superAdmin: addr(0x03),
		vault:      addr(0xfe),
		marketAddr: addr(0xff),
	}
	env.gov = gov.New(env.owner, env.admin)
	env.ledger = ledger.New(env.vault)
	env.ledger.SetState(newMockLedgerState())
	env.registry = rights.NewRegistry(0)
	env.registry.SetState(newMockRightsState())
	env.users = rights.NewSingleUser()
	env.custody = newMockCustody()
	env.configs = rentalconfig.NewStore(env.superAdmin)
	env.configs.SetState(newMockConfigState())
	env.emitter = &capturingEmitter{}
	env.state = newMockMarketState()

	env.engine = NewEngine(env.marketAddr, env.ledger, env.registry, env.custody, env.configs, env.gov)
	env.engine.SetState(env.state)
	env.engine.SetEmitter(env.emitter)
	env.engine.SetNowFunc(func() int64 { return env.now })

	env.book = NewOrderBook(env.marketAddr, env.ledger, env.users, env.custody, env.configs, env.gov)
	env.book.SetState(env.state)
	env.book.SetEmitter(env.emitter)
	env.book.SetNowFunc(func() int64 { return env.now })
	return env
}

func (env *testEnv) advance(seconds int64) { env.now += seconds }

func (env *testEnv) fund(t *testing.T, account [20]byte, currency ledger.Currency, amount *big.Int) {
	t.Helper()
	if err := env.ledger.Credit(account, currency, amount); err != nil {
		t.Fatalf("fund account: %v", err)
	}
}

func (env *testEnv) balance(t *testing.T, account [20]byte, currency ledger.Currency) *big.Int {
	t.Helper()
	balance, err := env.ledger.BalanceOf(account, currency)
	if err != nil {
		t.Fatalf("balance of: %v", err)
	}
	return balance
}

// registerCollection installs a collection config with a 15% royalty, a one
// day cycle, and a 30 day duration cap.
func (env *testEnv) registerCollection(t *testing.T, collection, beneficiary [20]byte) {
	t.Helper()
	err := env.configs.InitConfig(env.superAdmin, collection, env.admin, beneficiary, 1500, 86_400, 30*86_400)
	if err != nil {
		t.Fatalf("init collection config: %v", err)
	}
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("parse big int %q", s)
	}
	return v
}
