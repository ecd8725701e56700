//go:build shorttimelock

package vesting

import "time"

// TimelockDuration is shortened for integration test builds. Release builds
// must not set the shorttimelock tag.
const TimelockDuration = 5 * time.Second
