// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package slashing

import (
	"encoding/binary"
	"math/big"

	"github.com/pkg/errors"

	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
)

var (
	slotPenaltyCounters = tidal.BytesToBytes32([]byte("penalty-counters"))
	slotBurnable        = tidal.BytesToBytes32([]byte("burnable-shares"))
)

type storage struct {
	context  *store.Context
	burnable *store.Mapping[tidal.Bytes32, *big.Int]
}

func newStorage(sctx *store.Context) *storage {
	return &storage{
		context:  sctx,
		burnable: store.NewMapping[tidal.Bytes32, *big.Int](sctx, slotBurnable),
	}
}

func (s *storage) penaltyCounter(set tidal.Bytes32) *store.Counter {
	return store.NewCounter(s.context, tidal.Blake2b(slotPenaltyCounters.Bytes(), set.Bytes()))
}

func burnKey(set tidal.Bytes32, penaltyID uint64, strategy tidal.Bytes32) tidal.Bytes32 {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], penaltyID)
	return tidal.Blake2b(set.Bytes(), id[:], strategy.Bytes())
}

func (s *storage) getBurnable(set tidal.Bytes32, penaltyID uint64, strategy tidal.Bytes32) (*big.Int, error) {
	value, err := s.burnable.Get(burnKey(set, penaltyID, strategy))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get burnable shares")
	}
	if value == nil {
		return new(big.Int), nil
	}
	return value, nil
}

func (s *storage) setBurnable(set tidal.Bytes32, penaltyID uint64, strategy tidal.Bytes32, value *big.Int) error {
	if err := s.burnable.Set(burnKey(set, penaltyID, strategy), value); err != nil {
		return errors.Wrap(err, "failed to set burnable shares")
	}
	return nil
}
