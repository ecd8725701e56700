// Package address derives the stable storage addresses of program records
// from a domain tag and a numeric id.
package address

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Domain tags.
var (
	SeedProgramConfig   = []byte("program_config")
	SeedVestingSchedule = []byte("vesting_schedule")
	SeedVestingVault    = []byte("vesting_vault")
)

// DefaultProgramID is used when no program id is configured.
var DefaultProgramID = solana.MustPublicKeyFromBase58("HaioVest11111111111111111111111111111111111")

// Deriver maps (tag, id) pairs to program-derived addresses.
type Deriver struct {
	programID solana.PublicKey
}

// NewDeriver returns a Deriver for programID. A zero programID selects
// DefaultProgramID.
func NewDeriver(programID solana.PublicKey) *Deriver {
	if programID.IsZero() {
		programID = DefaultProgramID
	}
	return &Deriver{programID: programID}
}

// ProgramID returns the program id addresses are derived under.
func (d *Deriver) ProgramID() solana.PublicKey {
	return d.programID
}

// ProgramConfig returns the singleton config address.
func (d *Deriver) ProgramConfig() (solana.PublicKey, uint8, error) {
	return d.find(SeedProgramConfig)
}

// Schedule returns the address of schedule id.
func (d *Deriver) Schedule(id uint64) (solana.PublicKey, uint8, error) {
	return d.find(SeedVestingSchedule, le64(id))
}

// Vault returns the address of the custody vault bound to schedule id.
func (d *Deriver) Vault(id uint64) (solana.PublicKey, uint8, error) {
	return d.find(SeedVestingVault, le64(id))
}

func (d *Deriver) find(seeds ...[]byte) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(seeds, d.programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive %s address: %w", seeds[0], err)
	}
	return addr, bump, nil
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
