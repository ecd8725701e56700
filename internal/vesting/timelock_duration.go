//go:build !shorttimelock

package vesting

import "time"

// TimelockDuration is the minimum delay between proposing and confirming a
// distribution hub change.
const TimelockDuration = 48 * time.Hour
