//go:build shorttimelock

package vesting

import (
	"testing"
	"time"
)

func TestTimelockDuration(t *testing.T) {
	if TimelockDuration != 5*time.Second {
		t.Fatalf("TimelockDuration = %v, want 5s", TimelockDuration)
	}
}
