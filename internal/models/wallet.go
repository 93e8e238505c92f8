package models

import "time"

// Wallet is the native-currency balance for one address. The escrow vault is
// the only component that moves funds between wallets; deposits come in
// through the faucet endpoint.
type Wallet struct {
	Address      Address   `json:"address"`
	BalanceCents int64     `json:"balance_cents"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
