// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/tidalprotocol/tidal/tidal"
)

// Counter is a storage wrapper for a monotonically increasing uint64 slot.
type Counter struct {
	context *Context
	pos     tidal.Bytes32
}

// NewCounter creates a counter bound to the given slot.
func NewCounter(context *Context, pos tidal.Bytes32) *Counter {
	return &Counter{context: context, pos: pos}
}

// Get returns the current count, zero if unset.
func (c *Counter) Get() (uint64, error) {
	var value uint64
	err := c.context.state.DecodeStorage(c.context.ns, c.pos, func(raw []byte) error {
		if len(raw) == 0 {
			return nil
		}
		return rlp.DecodeBytes(raw, &value)
	})
	return value, err
}

// Increment bumps the count and returns the new value.
func (c *Counter) Increment() (uint64, error) {
	value, err := c.Get()
	if err != nil {
		return 0, err
	}
	value++
	if err := c.set(value); err != nil {
		return 0, err
	}
	return value, nil
}

func (c *Counter) set(value uint64) error {
	return c.context.state.EncodeStorage(c.context.ns, c.pos, func() ([]byte, error) {
		return rlp.EncodeToBytes(value)
	})
}
