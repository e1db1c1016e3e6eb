package rights

// UserRights is the single-holder flavour of usage rights consumed by the
// whole-asset order book: one active user per token at a time, expiry applied
// lazily on read. Assets exposing setUser/userOf/userExpires semantics
// implement this directly; SingleUser is an in-memory implementation for
// hosts and tests.
type UserRights interface {
	SetUser(collection [20]byte, tokenID uint64, user [20]byte, expiry int64) error
	UserOf(collection [20]byte, tokenID uint64, now int64) ([20]byte, bool)
	UserExpires(collection [20]byte, tokenID uint64) int64
}

type userKey struct {
	collection [20]byte
	tokenID    uint64
}

type userGrant struct {
	user   [20]byte
	expiry int64
}

// SingleUser tracks one active user per (collection, token id).
type SingleUser struct {
	grants map[userKey]userGrant
}

// NewSingleUser constructs an empty single-holder rights table.
func NewSingleUser() *SingleUser {
	return &SingleUser{grants: make(map[userKey]userGrant)}
}

// SetUser assigns the active user and expiry for a token, replacing any prior
// grant. Setting the zero user clears the grant.
func (s *SingleUser) SetUser(collection [20]byte, tokenID uint64, user [20]byte, expiry int64) error {
	key := userKey{collection: collection, tokenID: tokenID}
	if user == ([20]byte{}) {
		delete(s.grants, key)
		return nil
	}
	s.grants[key] = userGrant{user: user, expiry: expiry}
	return nil
}

// UserOf returns the active user if the grant has not expired. An expired
// grant reports no user even though the slot has not been cleared.
func (s *SingleUser) UserOf(collection [20]byte, tokenID uint64, now int64) ([20]byte, bool) {
	grant, ok := s.grants[userKey{collection: collection, tokenID: tokenID}]
	if !ok || now >= grant.expiry {
		return [20]byte{}, false
	}
	return grant.user, true
}

// UserExpires returns the raw expiry of the current grant, zero when none.
func (s *SingleUser) UserExpires(collection [20]byte, tokenID uint64) int64 {
	return s.grants[userKey{collection: collection, tokenID: tokenID}].expiry
}
