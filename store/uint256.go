// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/tidalprotocol/tidal/tidal"
)

// Uint256 is a storage wrapper for a single unsigned big integer slot.
type Uint256 struct {
	context *Context
	pos     tidal.Bytes32
}

// NewUint256 creates a scalar bound to the given slot.
func NewUint256(context *Context, pos tidal.Bytes32) *Uint256 {
	return &Uint256{context: context, pos: pos}
}

// Get returns the stored value, zero if unset.
func (u *Uint256) Get() (*big.Int, error) {
	value := new(big.Int)
	err := u.context.state.DecodeStorage(u.context.ns, u.pos, func(raw []byte) error {
		if len(raw) == 0 {
			return nil
		}
		return rlp.DecodeBytes(raw, value)
	})
	return value, err
}

// Set stores the value.
func (u *Uint256) Set(value *big.Int) error {
	if value.Sign() < 0 {
		return errors.New("negative value")
	}
	return u.context.state.EncodeStorage(u.context.ns, u.pos, func() ([]byte, error) {
		return rlp.EncodeToBytes(value)
	})
}

// Add increases the stored value by the given amount.
func (u *Uint256) Add(value *big.Int) error {
	current, err := u.Get()
	if err != nil {
		return err
	}
	return u.Set(current.Add(current, value))
}

// Sub decreases the stored value by the given amount.
// It fails on underflow.
func (u *Uint256) Sub(value *big.Int) error {
	current, err := u.Get()
	if err != nil {
		return err
	}
	current.Sub(current, value)
	if current.Sign() < 0 {
		return errors.New("uint256 underflow")
	}
	return u.Set(current)
}
