package models

// Address identifies a party. Addresses are opaque strings issued outside the
// system; the core never interprets them.
type Address string

// ZeroAddress is the unset address value.
const ZeroAddress Address = ""

func (a Address) IsZero() bool { return a == ZeroAddress }
