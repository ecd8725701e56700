package model

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// PendingHubChange is a proposed hub address waiting out its timelock.
type PendingHubChange struct {
	Target   solana.PublicKey `json:"target"`
	Deadline int64            `json:"deadline"`
}

// ProgramConfig is the singleton program configuration. A nil PendingHub
// means no change is pending.
type ProgramConfig struct {
	Address         solana.PublicKey  `json:"address"`
	Bump            uint8             `json:"bump"`
	Admin           solana.PublicKey  `json:"admin"`
	DistributionHub solana.PublicKey  `json:"distribution_hub"`
	PendingHub      *PendingHubChange `json:"pending_hub,omitempty"`
	TotalSchedules  uint64            `json:"total_schedules"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// HubSet reports whether a distribution hub has been configured.
func (c *ProgramConfig) HubSet() bool {
	return !c.DistributionHub.IsZero()
}
