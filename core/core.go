// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package core wires the accounting engines behind a single-writer
// facade. Every mutating operation runs as one atomic transaction over
// the shared state: it either commits completely or leaves no trace.
package core

import (
	"math/big"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/tidalprotocol/tidal/core/allocation"
	"github.com/tidalprotocol/tidal/core/checkpoint"
	"github.com/tidalprotocol/tidal/core/registry"
	"github.com/tidalprotocol/tidal/core/shares"
	"github.com/tidalprotocol/tidal/core/slashing"
	"github.com/tidalprotocol/tidal/core/withdrawals"
	"github.com/tidalprotocol/tidal/log"
	"github.com/tidalprotocol/tidal/reverts"
	"github.com/tidalprotocol/tidal/state"
	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
	"github.com/tidalprotocol/tidal/wad"
)

var logger = log.WithContext("pkg", "core")

// engine storage namespaces
var (
	nsRegistry    = tidal.BytesToAddress([]byte("tidal-registry"))
	nsCheckpoint  = tidal.BytesToAddress([]byte("tidal-checkpoint"))
	nsAllocation  = tidal.BytesToAddress([]byte("tidal-allocation"))
	nsShares      = tidal.BytesToAddress([]byte("tidal-shares"))
	nsWithdrawals = tidal.BytesToAddress([]byte("tidal-withdrawals"))
	nsSlashing    = tidal.BytesToAddress([]byte("tidal-slashing"))
)

const rootCacheSize = 256

// Options carries the external collaborators of the engine. Verifier
// and Balances are required, the rest may be nil.
type Options struct {
	Verifier   Verifier
	Balances   BalanceReader
	Gate       Gate
	Membership Membership
	Sink       ReconcileSink
}

// Core is the accounting engine facade.
type Core struct {
	mu    sync.Mutex
	state *state.State

	verifier   Verifier
	balances   BalanceReader
	gate       Gate
	membership Membership
	sink       ReconcileSink
	rootCache  *lru.Cache

	registry    *registry.Service
	checkpoint  *checkpoint.Service
	alloc       *allocation.Service
	shares      *shares.Service
	withdrawals *withdrawals.Service
	slashing    *slashing.Service
}

// New creates the engine over the given state.
func New(st *state.State, opts Options) (*Core, error) {
	if opts.Verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if opts.Balances == nil {
		return nil, errors.New("balance reader is required")
	}
	rootCache, err := lru.New(rootCacheSize)
	if err != nil {
		return nil, err
	}

	reg := registry.New(store.NewContext(nsRegistry, st))
	alloc := allocation.New(store.NewContext(nsAllocation, st))
	shr := shares.New(store.NewContext(nsShares, st))
	wdr := withdrawals.New(store.NewContext(nsWithdrawals, st))

	return &Core{
		state:       st,
		verifier:    opts.Verifier,
		balances:    opts.Balances,
		gate:        opts.Gate,
		membership:  opts.Membership,
		sink:        opts.Sink,
		rootCache:   rootCache,
		registry:    reg,
		checkpoint:  checkpoint.New(store.NewContext(nsCheckpoint, st), reg),
		alloc:       alloc,
		shares:      shr,
		withdrawals: wdr,
		slashing:    slashing.New(store.NewContext(nsSlashing, st), alloc, shr, wdr),
	}, nil
}

// transact runs fn as one atomic operation: gate check first, then all
// writes journaled, reverted on error, committed on success.
func (c *Core) transact(op string, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gate != nil {
		if err := c.gate.Check(op); err != nil {
			return errors.Wrapf(err, "operation %s rejected", op)
		}
	}

	rev := c.state.NewCheckpoint()
	if err := fn(); err != nil {
		c.state.RevertTo(rev)
		return err
	}
	return c.state.Commit()
}

// referenceRoot resolves the attestation root effective at ts, with a
// small cache in front of the verifier.
func (c *Core) referenceRoot(ts uint64) (tidal.Bytes32, error) {
	if cached, ok := c.rootCache.Get(ts); ok {
		return cached.(tidal.Bytes32), nil
	}
	root, err := c.verifier.RootAt(ts)
	if err != nil {
		return tidal.Bytes32{}, errors.Wrap(err, "failed to resolve reference root")
	}
	c.rootCache.Add(ts, root)
	return root, nil
}

// nativeMaxMagnitude resolves the staker's delegated operator and that
// operator's max magnitude for an asset class. Undelegated stakers are
// at full magnitude.
func (c *Core) maxMagnitudeFor(staker tidal.Address, strategy tidal.Bytes32) (tidal.Address, bool, uint64, error) {
	operator, delegated, err := c.shares.DelegatedOperator(staker)
	if err != nil {
		return tidal.Address{}, false, 0, err
	}
	if !delegated {
		return tidal.Address{}, false, tidal.WAD, nil
	}
	maxMag, err := c.alloc.MaxMagnitude(operator, strategy)
	if err != nil {
		return tidal.Address{}, false, 0, err
	}
	return operator, true, maxMag, nil
}

// emitOutcome folds a finalized round into the share ledger and hands
// it to the sink. Runs inside the transaction that finalized the round,
// so a sink error reverts everything and the round can be retried.
func (c *Core) emitOutcome(owner tidal.Address, outcome *checkpoint.Outcome) error {
	_, _, maxMag, err := c.maxMagnitudeFor(owner, tidal.NativeStrategy)
	if err != nil {
		return err
	}
	if err := c.shares.ApplyReconciliation(owner, outcome.PriorBalance, outcome.Delta, maxMag); err != nil {
		return err
	}
	metricsCheckpointsFinalized().Add(1)
	if c.sink != nil {
		if err := c.sink.OnReconciled(owner, outcome); err != nil {
			return errors.Wrap(err, "reconcile sink rejected outcome")
		}
	}
	return nil
}

// RegisterSubAccounts verifies registration credentials against the
// reference root at now-1 and activates the sub-accounts. The whole
// batch registers or none of it does.
func (c *Core) RegisterSubAccounts(owner tidal.Address, proofs []CredentialProof, now uint64) error {
	logger.Debug("registering sub-accounts", "owner", owner, "count", len(proofs), "ts", now)
	err := c.transact(OpRegister, func() error {
		if len(proofs) == 0 {
			return reverts.New("no credentials to register")
		}
		refRoot, err := c.referenceRoot(now - 1)
		if err != nil {
			return err
		}
		for i := range proofs {
			proof := &proofs[i]
			cred, err := c.verifier.VerifyCredential(refRoot, proof)
			if err != nil {
				return errors.Wrap(err, "credential verification failed")
			}
			if cred.EligibleAt > now {
				return reverts.New("sub-account not yet eligible")
			}
			if cred.ExitScheduledAt != 0 {
				return reverts.New("sub-account exit in progress")
			}
			markTs, err := c.checkpoint.AbsorbRegistration(owner, cred.BalanceGrains)
			if err != nil {
				return err
			}
			if err := c.registry.Register(owner, proof.ID, cred.Index, cred.BalanceGrains, markTs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Info("sub-account registration failed", "owner", owner, "err", err)
		return err
	}
	logger.Info("sub-accounts registered", "owner", owner, "count", len(proofs))
	return nil
}

// StartCheckpoint opens a reconciliation round for the pod, pinned to
// the reference root at now-1. Returns the start result, with the
// outcome filled in when the round finalized synchronously.
func (c *Core) StartCheckpoint(owner tidal.Address, now uint64, failIfZeroBalance bool) (*checkpoint.StartResult, error) {
	logger.Debug("starting checkpoint", "owner", owner, "ts", now)
	var result *checkpoint.StartResult
	err := c.transact(OpStartCheckpoint, func() error {
		refRoot, err := c.referenceRoot(now - 1)
		if err != nil {
			return err
		}
		execBalance, err := c.balances.PodBalance(owner)
		if err != nil {
			return errors.Wrap(err, "failed to read pod balance")
		}
		result, err = c.checkpoint.Start(owner, now, execBalance, refRoot, failIfZeroBalance)
		if err != nil {
			return err
		}
		if result.Finalized != nil {
			return c.emitOutcome(owner, result.Finalized)
		}
		return nil
	})
	if err != nil {
		logger.Info("checkpoint start failed", "owner", owner, "err", err)
		return nil, err
	}
	metricsCheckpointsStarted().Add(1)
	logger.Info("checkpoint started", "owner", owner, "ts", now,
		"proofsRemaining", result.ProofsRemaining, "finalized", result.Finalized != nil)
	return result, nil
}

// SubmitProofs verifies a proof batch against the open round's
// reference root and folds the proven balances in. Stale or duplicate
// elements are skipped; invalid proofs reject the whole batch.
func (c *Core) SubmitProofs(owner tidal.Address, container *ContainerProof, balances []BalanceProof) (*checkpoint.ApplyResult, error) {
	logger.Debug("submitting proofs", "owner", owner, "count", len(balances))
	var result *checkpoint.ApplyResult
	err := c.transact(OpSubmitProofs, func() error {
		if len(balances) == 0 {
			return reverts.New("empty proof batch")
		}
		pod, err := c.checkpoint.GetPod(owner)
		if err != nil {
			return err
		}
		if !pod.Open() {
			return reverts.New("no open checkpoint")
		}
		if err := c.verifier.VerifyContainer(pod.Current.ReferenceRoot, container); err != nil {
			return errors.Wrap(err, "container proof verification failed")
		}
		proven := make([]checkpoint.ProvenBalance, 0, len(balances))
		for i := range balances {
			proof := &balances[i]
			if err := c.verifier.VerifyBalance(container.ContainerRoot, proof); err != nil {
				return errors.Wrap(err, "balance proof verification failed")
			}
			proven = append(proven, checkpoint.ProvenBalance{ID: proof.ID, Balance: proof.BalanceGrains})
		}
		result, err = c.checkpoint.ApplyBalances(owner, proven)
		if err != nil {
			return err
		}
		if result.Finalized != nil {
			return c.emitOutcome(owner, result.Finalized)
		}
		return nil
	})
	if err != nil {
		logger.Info("proof submission failed", "owner", owner, "err", err)
		return nil, err
	}
	metricsProofsApplied().Add(int64(result.Applied))
	metricsProofsSkipped().Add(int64(result.Skipped))
	logger.Info("proofs applied", "owner", owner, "applied", result.Applied,
		"skipped", result.Skipped, "remaining", result.ProofsRemaining,
		"finalized", result.Finalized != nil)
	return result, nil
}

// Deposit credits deposit shares to the staker for an asset class.
func (c *Core) Deposit(staker tidal.Address, strategy tidal.Bytes32, amount *big.Int) error {
	logger.Debug("depositing", "staker", staker, "strategy", strategy.AbbrevString(), "amount", amount)
	err := c.transact(OpDeposit, func() error {
		if strategy == tidal.NativeStrategy {
			return reverts.New("native shares enter via checkpoints only")
		}
		_, _, maxMag, err := c.maxMagnitudeFor(staker, strategy)
		if err != nil {
			return err
		}
		return c.shares.AddShares(staker, strategy, amount, maxMag)
	})
	if err != nil {
		logger.Info("deposit failed", "staker", staker, "err", err)
		return err
	}
	logger.Info("deposit credited", "staker", staker, "strategy", strategy.AbbrevString(), "amount", amount)
	return nil
}

// Delegate points the staker's deposits at an operator. Existing
// deposits across all asset classes move under the operator's pools.
func (c *Core) Delegate(staker, operator tidal.Address) error {
	err := c.transact(OpDelegate, func() error {
		return c.shares.Delegate(staker, operator, func(strategy tidal.Bytes32) (uint64, error) {
			return c.alloc.MaxMagnitude(operator, strategy)
		})
	})
	if err != nil {
		logger.Info("delegation failed", "staker", staker, "operator", operator, "err", err)
		return err
	}
	logger.Info("delegated", "staker", staker, "operator", operator)
	return nil
}

// ModifyAllocation sets the operator's allocated magnitude toward a
// penalty domain. Allocations toward sets the operator is a member of
// are slashable and follow the configured delays.
func (c *Core) ModifyAllocation(operator tidal.Address, set, strategy tidal.Bytes32, newMagnitude uint64, nowBlock uint32) error {
	logger.Debug("modifying allocation", "operator", operator, "set", set.AbbrevString(),
		"strategy", strategy.AbbrevString(), "magnitude", newMagnitude, "block", nowBlock)
	err := c.transact(OpModifyAllocation, func() error {
		slashable := true
		if c.membership != nil {
			member, err := c.membership.IsMember(operator, set)
			if err != nil {
				return errors.Wrap(err, "membership lookup failed")
			}
			slashable = member
		}
		return c.alloc.Modify(operator, set, strategy, newMagnitude, nowBlock,
			slashable, tidal.AllocationDelay(), tidal.DeallocationDelay())
	})
	if err != nil {
		logger.Info("allocation change failed", "operator", operator, "err", err)
		return err
	}
	logger.Info("allocation modified", "operator", operator, "set", set.AbbrevString(),
		"strategy", strategy.AbbrevString(), "magnitude", newMagnitude)
	return nil
}

// ClearDeallocations releases matured deallocations for the operator
// pair, up to maxToClear (zero = unbounded). Returns the number cleared.
func (c *Core) ClearDeallocations(operator tidal.Address, strategy tidal.Bytes32, nowBlock uint32, maxToClear int) (int, error) {
	var cleared int
	err := c.transact(OpClearDeallocations, func() error {
		var err error
		cleared, err = c.alloc.ClearMatured(operator, strategy, nowBlock, maxToClear)
		return err
	})
	if err != nil {
		return 0, err
	}
	if cleared > 0 {
		logger.Info("deallocations cleared", "operator", operator, "strategy", strategy.AbbrevString(), "count", cleared)
	}
	return cleared, nil
}

// Slash applies a penalty event against the operator under one penalty
// domain. Only set members can be slashed.
func (c *Core) Slash(operator tidal.Address, set tidal.Bytes32, strategies []tidal.Bytes32, fractions []uint64, nowBlock uint32) (*slashing.Result, error) {
	logger.Debug("slashing", "operator", operator, "set", set.AbbrevString(),
		"strategies", len(strategies), "block", nowBlock)
	var result *slashing.Result
	err := c.transact(OpSlash, func() error {
		if c.membership != nil {
			member, err := c.membership.IsMember(operator, set)
			if err != nil {
				return errors.Wrap(err, "membership lookup failed")
			}
			if !member {
				return reverts.New("operator not in set")
			}
		}
		var err error
		result, err = c.slashing.Slash(operator, set, strategies, fractions, nowBlock)
		return err
	})
	if err != nil {
		logger.Info("slash failed", "operator", operator, "err", err)
		return nil, err
	}
	metricsSlashes().Add(1)
	logger.Info("operator slashed", "operator", operator, "set", set.AbbrevString(),
		"penaltyId", result.PenaltyID, "strategies", len(result.Entries))
	return result, nil
}

// QueueWithdrawal debits deposit shares and queues their exit behind
// the withdrawal delay. Returns the queued withdrawal.
func (c *Core) QueueWithdrawal(staker tidal.Address, strategy tidal.Bytes32, depositShares *big.Int, nowBlock uint32) (*withdrawals.Withdrawal, error) {
	logger.Debug("queuing withdrawal", "staker", staker, "strategy", strategy.AbbrevString(),
		"shares", depositShares, "block", nowBlock)
	var w *withdrawals.Withdrawal
	err := c.transact(OpQueueWithdrawal, func() error {
		operator, delegated, maxMag, err := c.maxMagnitudeFor(staker, strategy)
		if err != nil {
			return err
		}
		factor, err := c.shares.SlashingFactor(staker, strategy, maxMag)
		if err != nil {
			return err
		}
		scaled, _, err := c.shares.RemoveDepositShares(staker, strategy, depositShares)
		if err != nil {
			return err
		}
		if delegated {
			if err := c.shares.DecreaseOperatorShares(operator, strategy, wad.MulWad(scaled, factor)); err != nil {
				return err
			}
		}
		w, err = c.withdrawals.Queue(staker, operator, strategy, scaled, factor, nowBlock, tidal.WithdrawalDelay())
		return err
	})
	if err != nil {
		logger.Info("withdrawal queue failed", "staker", staker, "err", err)
		return nil, err
	}
	metricsWithdrawalsQueued().Add(1)
	logger.Info("withdrawal queued", "staker", staker, "root", w.Root().AbbrevString(),
		"completableAt", w.CompletableAt)
	return w, nil
}

// CompleteWithdrawal settles a matured withdrawal and returns the paid
// share amount.
func (c *Core) CompleteWithdrawal(root tidal.Bytes32, nowBlock uint32) (*big.Int, error) {
	logger.Debug("completing withdrawal", "root", root.AbbrevString(), "block", nowBlock)
	var paid *big.Int
	err := c.transact(OpCompleteWithdrawal, func() error {
		w, found, err := c.withdrawals.Get(root)
		if err != nil {
			return err
		}
		if !found {
			return reverts.New("withdrawal not found")
		}
		dep, err := c.shares.GetDeposit(w.Staker, w.Strategy)
		if err != nil {
			return err
		}
		paid, err = c.withdrawals.Complete(root, nowBlock, dep.ScalingFactor)
		return err
	})
	if err != nil {
		logger.Info("withdrawal completion failed", "root", root.AbbrevString(), "err", err)
		return nil, err
	}
	metricsWithdrawalsCompleted().Add(1)
	logger.Info("withdrawal completed", "root", root.AbbrevString(), "paid", paid)
	return paid, nil
}
