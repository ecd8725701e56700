package model

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Routing selects where a schedule's released funds go.
type Routing string

const (
	// RoutingHub sends releases to the program's distribution hub.
	RoutingHub Routing = "hub"
	// RoutingBeneficiary sends releases to a per-schedule beneficiary account.
	RoutingBeneficiary Routing = "beneficiary"
)

// String returns the string representation of the routing.
func (r Routing) String() string {
	return string(r)
}

// IsValid checks whether the routing is a known value.
func (r Routing) IsValid() bool {
	switch r {
	case RoutingHub, RoutingBeneficiary:
		return true
	}
	return false
}

// SourceCategory tags where a schedule's allocation came from. Informational only.
type SourceCategory string

const (
	CategorySeed       SourceCategory = "seed"
	CategoryStrategic  SourceCategory = "strategic"
	CategoryPublicIDO  SourceCategory = "public_ido"
	CategoryTeam       SourceCategory = "team"
	CategoryAdvisors   SourceCategory = "advisors"
	CategoryEcosystem  SourceCategory = "ecosystem"
	CategoryMarketing  SourceCategory = "marketing"
	CategoryTreasury   SourceCategory = "treasury"
	CategoryLiquidity  SourceCategory = "liquidity"
	CategoryFoundation SourceCategory = "foundation"
	CategoryPartners   SourceCategory = "partners"
	CategoryOther      SourceCategory = "other"
)

// SourceCategories lists every valid category in display order.
var SourceCategories = []SourceCategory{
	CategorySeed, CategoryStrategic, CategoryPublicIDO, CategoryTeam,
	CategoryAdvisors, CategoryEcosystem, CategoryMarketing, CategoryTreasury,
	CategoryLiquidity, CategoryFoundation, CategoryPartners, CategoryOther,
}

// String returns the string representation of the category.
func (c SourceCategory) String() string {
	return string(c)
}

// IsValid checks whether the category is a known value.
func (c SourceCategory) IsValid() bool {
	for _, v := range SourceCategories {
		if c == v {
			return true
		}
	}
	return false
}

// Schedule is one vesting grant. Everything except AmountTransferred is fixed
// at creation.
type Schedule struct {
	ID                    uint64           `json:"id"`
	Address               solana.PublicKey `json:"address"`
	Bump                  uint8            `json:"bump"`
	Mint                  solana.PublicKey `json:"mint"`
	Vault                 solana.PublicKey `json:"vault"`
	VaultBump             uint8            `json:"vault_bump"`
	Depositor             solana.PublicKey `json:"depositor"`
	DepositorAccount      solana.PublicKey `json:"depositor_account"`
	Routing               Routing          `json:"routing"`
	Beneficiary           solana.PublicKey `json:"beneficiary"`
	BeneficiaryAccount    solana.PublicKey `json:"beneficiary_account"`
	TotalAmount           uint64           `json:"total_amount,string"`
	CliffTimestamp        int64            `json:"cliff_timestamp"`
	VestingStartTimestamp int64            `json:"vesting_start_timestamp"`
	VestingEndTimestamp   int64            `json:"vesting_end_timestamp"`
	AmountTransferred     uint64           `json:"amount_transferred,string"`
	SourceCategory        SourceCategory   `json:"source_category"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// FullyProcessed reports whether every token of the grant has been released.
func (s *Schedule) FullyProcessed() bool {
	return s.AmountTransferred >= s.TotalAmount
}

// Remaining returns the amount still held in custody.
func (s *Schedule) Remaining() uint64 {
	if s.AmountTransferred >= s.TotalAmount {
		return 0
	}
	return s.TotalAmount - s.AmountTransferred
}

// ScheduleParams are the caller-supplied parameters for a new schedule. The
// depositor is always the caller.
type ScheduleParams struct {
	Mint                  solana.PublicKey `json:"mint"`
	DepositorAccount      solana.PublicKey `json:"depositor_account"`
	Routing               Routing          `json:"routing"`
	Beneficiary           solana.PublicKey `json:"beneficiary"`
	BeneficiaryAccount    solana.PublicKey `json:"beneficiary_account"`
	TotalAmount           uint64           `json:"total_amount,string"`
	CliffTimestamp        int64            `json:"cliff_timestamp"`
	VestingStartTimestamp int64            `json:"vesting_start_timestamp"`
	VestingEndTimestamp   int64            `json:"vesting_end_timestamp"`
	SourceCategory        SourceCategory   `json:"source_category"`
}

// ScheduleFilter holds criteria for listing schedules.
type ScheduleFilter struct {
	Mint     *solana.PublicKey `json:"mint,omitempty"`
	Routing  Routing           `json:"routing,omitempty"`
	Category SourceCategory    `json:"category,omitempty"`
	OpenOnly bool              `json:"open_only,omitempty"` // AmountTransferred < TotalAmount
	CliffBy  *int64            `json:"cliff_by,omitempty"`  // cliff_timestamp <= value
	Limit    int               `json:"limit,omitempty"`
	Offset   int               `json:"offset,omitempty"`
}
