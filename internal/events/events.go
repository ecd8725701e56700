package events

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/model"
)

// Event topic constants
const (
	TopicProgramInitialized = "vesting.program.initialized"
	TopicScheduleCreated    = "vesting.schedule.created"
	TopicScheduleClosed     = "vesting.schedule.closed"
	TopicTokensReleased     = "vesting.tokens.released"
	TopicHubUpdateProposed  = "vesting.hub.proposed"
	TopicHubUpdated         = "vesting.hub.updated"
	TopicCrankCompleted     = "vesting.crank.completed"

	// TopicAll matches every vesting topic.
	TopicAll = "vesting.>"
)

// Event types

type ProgramInitialized struct {
	Admin           solana.PublicKey `json:"admin"`
	DistributionHub solana.PublicKey `json:"distribution_hub"`
	ConfigAddress   solana.PublicKey `json:"config_address"`
}

type ScheduleCreated struct {
	ScheduleID            uint64               `json:"schedule_id"`
	Address               solana.PublicKey     `json:"address"`
	Depositor             solana.PublicKey     `json:"depositor"`
	Mint                  solana.PublicKey     `json:"mint"`
	Routing               model.Routing        `json:"routing"`
	TotalAmount           uint64               `json:"total_amount,string"`
	CliffTimestamp        int64                `json:"cliff_timestamp"`
	VestingStartTimestamp int64                `json:"vesting_start_timestamp"`
	VestingEndTimestamp   int64                `json:"vesting_end_timestamp"`
	SourceCategory        model.SourceCategory `json:"source_category"`
}

type ScheduleClosed struct {
	ScheduleID uint64           `json:"schedule_id"`
	ClosedBy   solana.PublicKey `json:"closed_by"`
}

type TokensReleased struct {
	ScheduleID        uint64           `json:"schedule_id"`
	Amount            uint64           `json:"amount,string"`
	Recipient         solana.PublicKey `json:"recipient"`
	Routing           model.Routing    `json:"routing"`
	AmountTransferred uint64           `json:"amount_transferred,string"`
	Timestamp         int64            `json:"timestamp"`
}

type HubUpdateProposed struct {
	CurrentHub  solana.PublicKey `json:"current_hub"`
	ProposedHub solana.PublicKey `json:"proposed_hub"`
	Deadline    int64            `json:"deadline"`
}

type HubUpdated struct {
	OldHub    solana.PublicKey `json:"old_hub"`
	NewHub    solana.PublicKey `json:"new_hub"`
	Timestamp int64            `json:"timestamp"`
}

type CrankCompleted struct {
	RunID     string           `json:"run_id"`
	Mint      solana.PublicKey `json:"mint"`
	Released  int              `json:"released"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Amount    uint64           `json:"amount,string"`
	Timestamp int64            `json:"timestamp"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
