// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package core

import (
	"math/big"

	"github.com/tidalprotocol/tidal/core/allocation"
	"github.com/tidalprotocol/tidal/core/checkpoint"
	"github.com/tidalprotocol/tidal/core/registry"
	"github.com/tidalprotocol/tidal/core/withdrawals"
	"github.com/tidalprotocol/tidal/tidal"
)

// GetPod returns the pod's checkpoint record.
func (c *Core) GetPod(owner tidal.Address) (*checkpoint.Pod, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkpoint.GetPod(owner)
}

// GetSubAccount returns one sub-account record of the pod.
func (c *Core) GetSubAccount(owner tidal.Address, id tidal.Bytes32) (*registry.SubAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Get(owner, id)
}

// ActiveSubAccounts returns the pod's active sub-account count.
func (c *Core) ActiveSubAccounts(owner tidal.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.ActiveCount(owner)
}

// MagnitudeInfo returns the operator's capacity record for an asset class.
func (c *Core) MagnitudeInfo(operator tidal.Address, strategy tidal.Bytes32) (*allocation.OperatorMagnitude, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alloc.MagnitudeInfo(operator, strategy)
}

// GetAllocation returns the operator's allocation toward one penalty
// domain, matured pending increases made effective for reading.
func (c *Core) GetAllocation(operator tidal.Address, set, strategy tidal.Bytes32, nowBlock uint32) (*allocation.Allocation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alloc.GetAllocation(operator, set, strategy, nowBlock)
}

// OperatorShares returns the operator's delegated share total.
func (c *Core) OperatorShares(operator tidal.Address, strategy tidal.Bytes32) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shares.OperatorShares(operator, strategy)
}

// StakerPosition describes a staker's deposit in one asset class.
type StakerPosition struct {
	DepositShares *big.Int
	ScalingFactor *big.Int
	Withdrawable  *big.Int
	Operator      *tidal.Address
}

// GetStakerPosition returns the staker's deposit, scaling factor and
// currently withdrawable amount for one asset class.
func (c *Core) GetStakerPosition(staker tidal.Address, strategy tidal.Bytes32) (*StakerPosition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	operator, delegated, maxMag, err := c.maxMagnitudeFor(staker, strategy)
	if err != nil {
		return nil, err
	}
	dep, err := c.shares.GetDeposit(staker, strategy)
	if err != nil {
		return nil, err
	}
	withdrawable, err := c.shares.WithdrawableShares(staker, strategy, maxMag)
	if err != nil {
		return nil, err
	}
	position := &StakerPosition{
		DepositShares: dep.Shares,
		ScalingFactor: dep.ScalingFactor,
		Withdrawable:  withdrawable,
	}
	if delegated {
		position.Operator = &operator
	}
	return position, nil
}

// GetWithdrawal returns the queued withdrawal stored under root, if any.
func (c *Core) GetWithdrawal(root tidal.Bytes32) (*withdrawals.Withdrawal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.withdrawals.Get(root)
}

// BurnableShares returns the shares marked burnable for one strategy of
// a past penalty event.
func (c *Core) BurnableShares(set tidal.Bytes32, penaltyID uint64, strategy tidal.Bytes32) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slashing.BurnableShares(set, penaltyID, strategy)
}

// BeaconFactor returns the owner's externally fed penalty factor.
func (c *Core) BeaconFactor(owner tidal.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shares.BeaconFactor(owner)
}
