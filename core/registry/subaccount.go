// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package registry

// Status is the lifecycle state of a tracked sub-account.
type Status = uint8

const (
	StatusInactive = Status(iota) // 0 -> default value, never registered
	StatusActive                  // credentials verified, counted in checkpoints
	StatusExited                  // reported a zero balance, terminal
)

// SubAccount is a tracked validator record owned by a pod.
type SubAccount struct {
	ExternalIndex  uint64 // index of the sub-account at the external source
	LastBalance    uint64 // last recorded balance, in grains
	LastReconciled uint64 // timestamp of the checkpoint that last updated it
	Status         Status
}

// IsEmpty returns whether the record has never been written.
func (s *SubAccount) IsEmpty() bool {
	return s.Status == StatusInactive && s.ExternalIndex == 0 && s.LastBalance == 0 && s.LastReconciled == 0
}
