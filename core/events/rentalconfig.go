package events

import "github.com/emojidao/double-market-1155/core/types"

const (
	TypeConfigUpdated      = "rentalconfig.updated"
	TypeConfigAdminUpdated = "rentalconfig.admin_updated"
)

// ConfigUpdated is emitted when a collection's rental policy is initialised or
// mutated.
type ConfigUpdated struct {
	Collection         [20]byte
	Beneficiary        [20]byte
	FeeBps             uint32
	Cycle              int64
	MaxLendingDuration int64
}

func (ConfigUpdated) EventType() string { return TypeConfigUpdated }

func (e ConfigUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeConfigUpdated,
		Attributes: map[string]string{
			"collection":         addrToString(e.Collection),
			"beneficiary":        addrToString(e.Beneficiary),
			"feeBps":             uintToString(uint64(e.FeeBps)),
			"cycle":              intToString(e.Cycle),
			"maxLendingDuration": intToString(e.MaxLendingDuration),
		},
	}
}

// ConfigAdminUpdated is emitted whenever a collection's admin identity changes,
// whether by super-admin reset or by a completed propose/claim handoff.
type ConfigAdminUpdated struct {
	Collection [20]byte
	Admin      [20]byte
}

func (ConfigAdminUpdated) EventType() string { return TypeConfigAdminUpdated }

func (e ConfigAdminUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeConfigAdminUpdated,
		Attributes: map[string]string{
			"collection": addrToString(e.Collection),
			"admin":      addrToString(e.Admin),
		},
	}
}
