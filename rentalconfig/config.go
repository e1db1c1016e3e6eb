package rentalconfig

import (
	"errors"

	"github.com/emojidao/double-market-1155/core/events"
)

var (
	errNilState           = errors.New("rentalconfig: state not configured")
	ErrNotInitialized     = errors.New("rentalconfig: config not initialised")
	ErrAlreadyInitialized = errors.New("rentalconfig: config already initialised")
	ErrFeeTooHigh         = errors.New("rentalconfig: fee exceeds cap")
	ErrInvalidCycle       = errors.New("rentalconfig: cycle must be positive and not exceed max lending duration")
	ErrNotSuperAdmin      = errors.New("rentalconfig: caller is not the super admin")
	ErrNotAdmin           = errors.New("rentalconfig: caller is not the collection admin")
	ErrNotTempAdmin       = errors.New("rentalconfig: caller is not the proposed admin")
)

// MaxFeeBps caps both per-collection royalty rates and the platform market
// fee. Basis points out of 10,000.
const MaxFeeBps = 10_000

var zeroAddr [20]byte

// Config captures the rental policy of a single asset collection: who may
// adjust it, who collects its royalty, the royalty rate, the minimum billing
// cycle, and the ceiling on any single lending's duration.
type Config struct {
	Collection         [20]byte
	Admin              [20]byte
	Beneficiary        [20]byte
	TempAdmin          [20]byte
	FeeBps             uint32
	Cycle              int64
	MaxLendingDuration int64
}

// Clone returns a copy of the config so callers can safely mutate it without
// affecting the stored instance.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

type storeState interface {
	ConfigGet(collection [20]byte) (*Config, bool, error)
	ConfigPut(cfg *Config) error
}

// Store manages per-collection rental configurations. A single super admin
// (typically the platform owner) bootstraps configs; day-to-day mutation is
// delegated to per-collection admins with a two-step propose/claim handoff.
type Store struct {
	state      storeState
	superAdmin [20]byte
	emitter    events.Emitter
}

// NewStore constructs a config store owned by the supplied super admin.
func NewStore(superAdmin [20]byte) *Store {
	return &Store{superAdmin: superAdmin, emitter: events.NoopEmitter{}}
}

// SetState wires the store to the external persistence layer.
func (s *Store) SetState(state storeState) { s.state = state }

// SetEmitter configures the event emitter used by the store. Passing nil
// resets the emitter to a no-op implementation.
func (s *Store) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		s.emitter = events.NoopEmitter{}
		return
	}
	s.emitter = emitter
}

func (s *Store) emit(evt events.Event) {
	if s == nil || s.emitter == nil {
		return
	}
	s.emitter.Emit(evt)
}

func validateBounds(feeBps uint32, cycle, maxLendingDuration int64) error {
	if feeBps > MaxFeeBps {
		return ErrFeeTooHigh
	}
	if cycle <= 0 || cycle > maxLendingDuration {
		return ErrInvalidCycle
	}
	return nil
}

// InitConfig bootstraps the policy for a collection. Super admin only;
// re-initialisation is rejected so a live policy cannot be silently replaced.
func (s *Store) InitConfig(caller, collection, admin, beneficiary [20]byte, feeBps uint32, cycle, maxLendingDuration int64) error {
	if s == nil || s.state == nil {
		return errNilState
	}
	if caller != s.superAdmin {
		return ErrNotSuperAdmin
	}
	if _, ok, err := s.state.ConfigGet(collection); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	if err := validateBounds(feeBps, cycle, maxLendingDuration); err != nil {
		return err
	}
	cfg := &Config{
		Collection:         collection,
		Admin:              admin,
		Beneficiary:        beneficiary,
		FeeBps:             feeBps,
		Cycle:              cycle,
		MaxLendingDuration: maxLendingDuration,
	}
	if err := s.state.ConfigPut(cfg); err != nil {
		return err
	}
	s.emit(events.ConfigAdminUpdated{Collection: collection, Admin: admin})
	s.emit(events.ConfigUpdated{Collection: collection, Beneficiary: beneficiary, FeeBps: feeBps, Cycle: cycle, MaxLendingDuration: maxLendingDuration})
	return nil
}

// SetConfig mutates beneficiary, fee, cycle and max duration. The admin
// identity is never touched here; that requires ResetAdmin or the
// propose/claim handoff.
func (s *Store) SetConfig(caller, collection, beneficiary [20]byte, feeBps uint32, cycle, maxLendingDuration int64) error {
	if s == nil || s.state == nil {
		return errNilState
	}
	cfg, ok, err := s.state.ConfigGet(collection)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInitialized
	}
	if caller != s.superAdmin && caller != cfg.Admin {
		return ErrNotAdmin
	}
	if err := validateBounds(feeBps, cycle, maxLendingDuration); err != nil {
		return err
	}
	cfg.Beneficiary = beneficiary
	cfg.FeeBps = feeBps
	cfg.Cycle = cycle
	cfg.MaxLendingDuration = maxLendingDuration
	if err := s.state.ConfigPut(cfg); err != nil {
		return err
	}
	s.emit(events.ConfigUpdated{Collection: collection, Beneficiary: beneficiary, FeeBps: feeBps, Cycle: cycle, MaxLendingDuration: maxLendingDuration})
	return nil
}

// ResetAdmin replaces a collection's admin immediately. Super admin only; used
// to recover collections whose admin key was lost.
func (s *Store) ResetAdmin(caller, collection, newAdmin [20]byte) error {
	if s == nil || s.state == nil {
		return errNilState
	}
	if caller != s.superAdmin {
		return ErrNotSuperAdmin
	}
	cfg, ok, err := s.state.ConfigGet(collection)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInitialized
	}
	cfg.Admin = newAdmin
	cfg.TempAdmin = zeroAddr
	if err := s.state.ConfigPut(cfg); err != nil {
		return err
	}
	s.emit(events.ConfigAdminUpdated{Collection: collection, Admin: newAdmin})
	return nil
}

// SetTempAdmin proposes an admin successor. The proposal only takes effect
// when the successor calls ClaimAdmin, so a mistyped address cannot orphan the
// collection.
func (s *Store) SetTempAdmin(caller, collection, tempAdmin [20]byte) error {
	if s == nil || s.state == nil {
		return errNilState
	}
	cfg, ok, err := s.state.ConfigGet(collection)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInitialized
	}
	if caller != s.superAdmin && caller != cfg.Admin {
		return ErrNotAdmin
	}
	cfg.TempAdmin = tempAdmin
	return s.state.ConfigPut(cfg)
}

// ClaimAdmin finalises a proposed handoff. Only the proposed admin may call it.
func (s *Store) ClaimAdmin(caller, collection [20]byte) error {
	if s == nil || s.state == nil {
		return errNilState
	}
	cfg, ok, err := s.state.ConfigGet(collection)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInitialized
	}
	if cfg.TempAdmin == zeroAddr || caller != cfg.TempAdmin {
		return ErrNotTempAdmin
	}
	cfg.Admin = cfg.TempAdmin
	cfg.TempAdmin = zeroAddr
	if err := s.state.ConfigPut(cfg); err != nil {
		return err
	}
	s.emit(events.ConfigAdminUpdated{Collection: collection, Admin: cfg.Admin})
	return nil
}

// GetConfig resolves the policy for a collection if configured.
func (s *Store) GetConfig(collection [20]byte) (*Config, bool, error) {
	if s == nil || s.state == nil {
		return nil, false, errNilState
	}
	cfg, ok, err := s.state.ConfigGet(collection)
	if err != nil || !ok {
		return nil, ok, err
	}
	return cfg.Clone(), true, nil
}

// TotalFee returns the all-in fee rate for a collection: the platform market
// fee plus the collection's royalty rate. Callers use it to quote pricing
// before submitting a fulfillment.
func (s *Store) TotalFee(collection [20]byte, marketFeeBps uint32) (uint32, error) {
	cfg, ok, err := s.GetConfig(collection)
	if err != nil {
		return 0, err
	}
	if !ok {
		return marketFeeBps, nil
	}
	return marketFeeBps + cfg.FeeBps, nil
}
