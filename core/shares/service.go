// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package shares keeps the share ledger: operator totals per asset
// class, staker deposits with their scaling factors, delegations and
// the native penalty factor fed by balance reconciliation.
package shares

import (
	"math/big"

	"github.com/tidalprotocol/tidal/reverts"
	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
	"github.com/tidalprotocol/tidal/wad"
)

// Service exposes share accounting over the persisted ledger.
type Service struct {
	storage *storage
}

// New creates the share ledger service bound to sctx.
func New(sctx *store.Context) *Service {
	return &Service{storage: newStorage(sctx)}
}

// OperatorShares returns the delegated share total for one operator
// and asset class. Never nil.
func (s *Service) OperatorShares(operator tidal.Address, strategy tidal.Bytes32) (*big.Int, error) {
	return s.storage.getOperatorShares(operator, strategy)
}

// GetDeposit returns the staker's deposit record for one asset class.
// A staker that never deposited reads back zero shares at a WAD
// scaling factor.
func (s *Service) GetDeposit(staker tidal.Address, strategy tidal.Bytes32) (*Deposit, error) {
	return s.storage.getDeposit(staker, strategy)
}

// DelegatedOperator returns the operator the staker delegates to, and
// whether a delegation exists.
func (s *Service) DelegatedOperator(staker tidal.Address) (tidal.Address, bool, error) {
	operator, err := s.storage.getDelegation(staker)
	if err != nil {
		return tidal.Address{}, false, err
	}
	return operator, !operator.IsZero(), nil
}

// Delegate records the staker's delegation. Changing an existing
// delegation is rejected, undelegation flows are out of band.
//
// Every asset class the staker has deposited into moves under the
// operator: each pool is credited with the staker's withdrawable
// amount at the operator's max magnitude for that class, resolved via
// maxMagnitudeOf. A nil maxMagnitudeOf reads as full magnitude.
func (s *Service) Delegate(staker, operator tidal.Address, maxMagnitudeOf func(strategy tidal.Bytes32) (uint64, error)) error {
	current, err := s.storage.getDelegation(staker)
	if err != nil {
		return err
	}
	if !current.IsZero() {
		if current == operator {
			return nil
		}
		return reverts.New("staker already delegated")
	}
	if err := s.storage.setDelegation(staker, operator); err != nil {
		return err
	}
	return s.storage.iterateStrategies(staker, func(strategy tidal.Bytes32) error {
		dep, err := s.storage.getDeposit(staker, strategy)
		if err != nil {
			return err
		}
		if dep.Shares.Sign() == 0 {
			return nil
		}
		maxMag := tidal.WAD
		if maxMagnitudeOf != nil {
			if maxMag, err = maxMagnitudeOf(strategy); err != nil {
				return err
			}
		}
		factor, err := s.SlashingFactor(staker, strategy, maxMag)
		if err != nil {
			return err
		}
		scaled := wad.MulDiv(dep.Shares, dep.ScalingFactor, wadBig)
		return s.addOperatorShares(operator, strategy, wad.MulWad(scaled, factor))
	})
}

// SlashingFactor is the staker's effective penalty factor for one
// asset class under the given operator max magnitude. The native class
// composes the beacon penalty factor on top of the magnitude.
func (s *Service) SlashingFactor(staker tidal.Address, strategy tidal.Bytes32, maxMagnitude uint64) (uint64, error) {
	if strategy != tidal.NativeStrategy {
		return maxMagnitude, nil
	}
	beacon, err := s.storage.getBeaconFactor(staker)
	if err != nil {
		return 0, err
	}
	return wad.Compose(maxMagnitude, beacon), nil
}

// AddShares credits newly deposited shares to the staker and, when
// delegated, to its operator. The deposit scaling factor is rebased so
// the staker's withdrawable amount grows by exactly the added shares.
//
// maxMagnitude is the delegated operator's current max magnitude for
// the class, WAD when the staker is undelegated.
func (s *Service) AddShares(staker tidal.Address, strategy tidal.Bytes32, added *big.Int, maxMagnitude uint64) error {
	if added.Sign() <= 0 {
		return reverts.New("added shares must be positive")
	}
	factor, err := s.SlashingFactor(staker, strategy, maxMagnitude)
	if err != nil {
		return err
	}
	if factor == 0 {
		return reverts.New("staker is fully slashed")
	}
	dep, err := s.storage.getDeposit(staker, strategy)
	if err != nil {
		return err
	}
	// withdrawable before the deposit, at the current factor
	withdrawable := wad.MulWad(wad.MulDiv(dep.Shares, dep.ScalingFactor, wadBig), factor)

	total := new(big.Int).Add(dep.Shares, added)
	// newDSF = (withdrawable + added) * WAD^2 / (total * factor), rounded
	// up so the flooring on the read path cannot eat the added value
	num := new(big.Int).Add(withdrawable, added)
	num.Mul(num, wadBig)
	den := new(big.Int).Mul(total, new(big.Int).SetUint64(factor))
	dep.Shares = total
	dep.ScalingFactor = wad.MulDivCeil(num, wadBig, den)
	if err := s.storage.setDeposit(staker, strategy, dep); err != nil {
		return err
	}
	if err := s.storage.indexStrategy(staker, strategy); err != nil {
		return err
	}

	operator, delegated, err := s.DelegatedOperator(staker)
	if err != nil {
		return err
	}
	if delegated {
		if err := s.addOperatorShares(operator, strategy, added); err != nil {
			return err
		}
	}
	return nil
}

// RemoveDepositShares debits shares from the staker's deposit for
// withdrawal queuing and returns the scaled share amount together with
// the scaling factor captured at removal time.
func (s *Service) RemoveDepositShares(staker tidal.Address, strategy tidal.Bytes32, amount *big.Int) (scaled, factorAtRemoval *big.Int, err error) {
	if amount.Sign() <= 0 {
		return nil, nil, reverts.New("withdrawal amount must be positive")
	}
	dep, err := s.storage.getDeposit(staker, strategy)
	if err != nil {
		return nil, nil, err
	}
	if dep.Shares.Cmp(amount) < 0 {
		return nil, nil, reverts.New("insufficient deposit shares")
	}
	dep.Shares = new(big.Int).Sub(dep.Shares, amount)
	if err := s.storage.setDeposit(staker, strategy, dep); err != nil {
		return nil, nil, err
	}
	scaled = wad.MulDiv(amount, dep.ScalingFactor, wadBig)
	return scaled, dep.ScalingFactor, nil
}

// DecreaseOperatorShares debits the operator's delegated total,
// clamping at zero.
func (s *Service) DecreaseOperatorShares(operator tidal.Address, strategy tidal.Bytes32, amount *big.Int) error {
	shares, err := s.storage.getOperatorShares(operator, strategy)
	if err != nil {
		return err
	}
	shares = new(big.Int).Sub(shares, amount)
	if shares.Sign() < 0 {
		shares.SetUint64(0)
	}
	return s.storage.setOperatorShares(operator, strategy, shares)
}

// SlashOperatorShares burns the operator's delegated shares in
// proportion to a magnitude cut from prevMax down to newMax. The
// retained amount rounds up so the burn never exceeds the proportional
// penalty. Returns the removed amount, zero when prevMax is zero.
func (s *Service) SlashOperatorShares(operator tidal.Address, strategy tidal.Bytes32, prevMax, newMax uint64) (*big.Int, error) {
	if prevMax == 0 {
		return new(big.Int), nil
	}
	shares, err := s.storage.getOperatorShares(operator, strategy)
	if err != nil {
		return nil, err
	}
	if shares.Sign() == 0 {
		return new(big.Int), nil
	}
	retained := wad.MulDivCeil(shares, new(big.Int).SetUint64(newMax), new(big.Int).SetUint64(prevMax))
	removed := new(big.Int).Sub(shares, retained)
	if removed.Sign() < 0 {
		removed.SetUint64(0)
		retained = shares
	}
	if err := s.storage.setOperatorShares(operator, strategy, retained); err != nil {
		return nil, err
	}
	return removed, nil
}

// ApplyReconciliation folds a finalized checkpoint outcome into the
// ledger. A positive delta mints native deposit shares, a negative
// delta shrinks the owner's beacon penalty factor proportionally so
// every deposit of the owner is exposed to the loss. A gain arriving
// after a total loss is dropped, since the owner has no live native
// position left to credit.
//
// maxMagnitude is the delegated operator's native max magnitude, WAD
// when undelegated.
func (s *Service) ApplyReconciliation(owner tidal.Address, priorBalance uint64, delta int64, maxMagnitude uint64) error {
	switch {
	case delta > 0:
		factor, err := s.SlashingFactor(owner, tidal.NativeStrategy, maxMagnitude)
		if err != nil {
			return err
		}
		if factor == 0 {
			// a fully slashed position cannot be rebased, the gain is
			// dropped and the round still finalizes
			return nil
		}
		return s.AddShares(owner, tidal.NativeStrategy, new(big.Int).SetInt64(delta), maxMagnitude)
	case delta < 0:
		loss := uint64(-delta)
		if priorBalance == 0 || loss >= priorBalance {
			return s.storage.setBeaconFactor(owner, 0)
		}
		factor, err := s.storage.getBeaconFactor(owner)
		if err != nil {
			return err
		}
		// factor' = factor * (prior - loss) / prior, floored
		next := new(big.Int).SetUint64(factor)
		next.Mul(next, new(big.Int).SetUint64(priorBalance-loss))
		next.Div(next, new(big.Int).SetUint64(priorBalance))
		return s.storage.setBeaconFactor(owner, next.Uint64())
	default:
		return nil
	}
}

// BeaconFactor reads the owner's beacon penalty factor, WAD when no
// loss has ever been recorded.
func (s *Service) BeaconFactor(staker tidal.Address) (uint64, error) {
	return s.storage.getBeaconFactor(staker)
}

// WithdrawableShares is the staker's currently withdrawable amount for
// one asset class, after scaling factor and penalty factor.
func (s *Service) WithdrawableShares(staker tidal.Address, strategy tidal.Bytes32, maxMagnitude uint64) (*big.Int, error) {
	factor, err := s.SlashingFactor(staker, strategy, maxMagnitude)
	if err != nil {
		return nil, err
	}
	dep, err := s.storage.getDeposit(staker, strategy)
	if err != nil {
		return nil, err
	}
	return wad.MulWad(wad.MulDiv(dep.Shares, dep.ScalingFactor, wadBig), factor), nil
}

func (s *Service) addOperatorShares(operator tidal.Address, strategy tidal.Bytes32, amount *big.Int) error {
	shares, err := s.storage.getOperatorShares(operator, strategy)
	if err != nil {
		return err
	}
	return s.storage.setOperatorShares(operator, strategy, new(big.Int).Add(shares, amount))
}

var wadBig = new(big.Int).SetUint64(tidal.WAD)
