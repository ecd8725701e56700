package model

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// TokenAccount is a balance of one mint controlled by one authority.
// Custody vaults are token accounts whose owner is the schedule address.
type TokenAccount struct {
	Address   solana.PublicKey `json:"address"`
	Mint      solana.PublicKey `json:"mint"`
	Owner     solana.PublicKey `json:"owner"`
	Amount    uint64           `json:"amount,string"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
