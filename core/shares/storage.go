// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package shares

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
)

var (
	slotOperatorShares = tidal.BytesToBytes32([]byte("operator-shares"))
	slotDeposits       = tidal.BytesToBytes32([]byte("staker-deposits"))
	slotDelegations    = tidal.BytesToBytes32([]byte("staker-delegations"))
	slotBeaconFactors  = tidal.BytesToBytes32([]byte("beacon-penalty-factors"))
	slotStrategyIndex  = tidal.BytesToBytes32([]byte("staker-strategy-index"))
	slotIndexed        = tidal.BytesToBytes32([]byte("staker-strategy-indexed"))
)

// Deposit is a staker's position in one asset class. ScalingFactor is
// the deposit scaling factor, WAD when the staker has never deposited.
type Deposit struct {
	Shares        *big.Int
	ScalingFactor *big.Int
}

type storage struct {
	context       *store.Context
	deposits      *store.Mapping[tidal.Bytes32, Deposit]
	delegations   *store.Mapping[tidal.Address, tidal.Address]
	beaconFactors *store.Mapping[tidal.Address, uint64]
	indexed       *store.Mapping[tidal.Bytes32, bool]
}

func newStorage(sctx *store.Context) *storage {
	return &storage{
		context:       sctx,
		deposits:      store.NewMapping[tidal.Bytes32, Deposit](sctx, slotDeposits),
		delegations:   store.NewMapping[tidal.Address, tidal.Address](sctx, slotDelegations),
		beaconFactors: store.NewMapping[tidal.Address, uint64](sctx, slotBeaconFactors),
		indexed:       store.NewMapping[tidal.Bytes32, bool](sctx, slotIndexed),
	}
}

func pairKey(addr tidal.Address, strategy tidal.Bytes32) tidal.Bytes32 {
	return tidal.Blake2b(addr.Bytes(), strategy.Bytes())
}

func (s *storage) operatorShares(operator tidal.Address, strategy tidal.Bytes32) *store.Uint256 {
	pos := tidal.Blake2b(slotOperatorShares.Bytes(), pairKey(operator, strategy).Bytes())
	return store.NewUint256(s.context, pos)
}

func (s *storage) getOperatorShares(operator tidal.Address, strategy tidal.Bytes32) (*big.Int, error) {
	value, err := s.operatorShares(operator, strategy).Get()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get operator shares")
	}
	return value, nil
}

func (s *storage) setOperatorShares(operator tidal.Address, strategy tidal.Bytes32, value *big.Int) error {
	if err := s.operatorShares(operator, strategy).Set(value); err != nil {
		return errors.Wrap(err, "failed to set operator shares")
	}
	return nil
}

func (s *storage) getDeposit(staker tidal.Address, strategy tidal.Bytes32) (*Deposit, error) {
	dep, err := s.deposits.Get(pairKey(staker, strategy))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get deposit")
	}
	if dep.Shares == nil {
		dep.Shares = new(big.Int)
	}
	if dep.ScalingFactor == nil || dep.ScalingFactor.Sign() == 0 {
		dep.ScalingFactor = new(big.Int).SetUint64(tidal.WAD)
	}
	return &dep, nil
}

func (s *storage) setDeposit(staker tidal.Address, strategy tidal.Bytes32, dep *Deposit) error {
	if err := s.deposits.Set(pairKey(staker, strategy), *dep); err != nil {
		return errors.Wrap(err, "failed to set deposit")
	}
	return nil
}

func (s *storage) strategyIndex(staker tidal.Address) *store.Queue[tidal.Bytes32] {
	pos := tidal.Blake2b(slotStrategyIndex.Bytes(), staker.Bytes())
	return store.NewQueue[tidal.Bytes32](s.context, pos)
}

// indexStrategy records that the staker holds a deposit in the asset
// class, once per pair.
func (s *storage) indexStrategy(staker tidal.Address, strategy tidal.Bytes32) error {
	key := pairKey(staker, strategy)
	seen, err := s.indexed.Has(key)
	if err != nil {
		return errors.Wrap(err, "failed to check strategy index")
	}
	if seen {
		return nil
	}
	if err := s.indexed.Set(key, true); err != nil {
		return errors.Wrap(err, "failed to mark strategy indexed")
	}
	if _, err := s.strategyIndex(staker).Push(strategy); err != nil {
		return errors.Wrap(err, "failed to index strategy")
	}
	return nil
}

func (s *storage) iterateStrategies(staker tidal.Address, cb func(strategy tidal.Bytes32) error) error {
	return s.strategyIndex(staker).Iterate(func(_ uint64, strategy tidal.Bytes32) (bool, error) {
		if err := cb(strategy); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *storage) getDelegation(staker tidal.Address) (tidal.Address, error) {
	operator, err := s.delegations.Get(staker)
	if err != nil {
		return tidal.Address{}, errors.Wrap(err, "failed to get delegation")
	}
	return operator, nil
}

func (s *storage) setDelegation(staker, operator tidal.Address) error {
	if err := s.delegations.Set(staker, operator); err != nil {
		return errors.Wrap(err, "failed to set delegation")
	}
	return nil
}

func (s *storage) getBeaconFactor(staker tidal.Address) (uint64, error) {
	written, err := s.beaconFactors.Has(staker)
	if err != nil {
		return 0, errors.Wrap(err, "failed to check beacon factor")
	}
	if !written {
		return tidal.WAD, nil
	}
	factor, err := s.beaconFactors.Get(staker)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get beacon factor")
	}
	return factor, nil
}

func (s *storage) setBeaconFactor(staker tidal.Address, factor uint64) error {
	if err := s.beaconFactors.Set(staker, factor); err != nil {
		return errors.Wrap(err, "failed to set beacon factor")
	}
	return nil
}
