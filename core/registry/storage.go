// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package registry

import (
	"github.com/pkg/errors"

	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
)

var (
	slotSubAccounts  = tidal.BytesToBytes32([]byte("sub-accounts"))
	slotActiveCounts = tidal.BytesToBytes32([]byte("active-sub-account-counts"))
)

type storage struct {
	subAccounts  *store.Mapping[tidal.Bytes32, SubAccount]
	activeCounts *store.Mapping[tidal.Address, uint64]
}

func newStorage(sctx *store.Context) *storage {
	return &storage{
		subAccounts:  store.NewMapping[tidal.Bytes32, SubAccount](sctx, slotSubAccounts),
		activeCounts: store.NewMapping[tidal.Address, uint64](sctx, slotActiveCounts),
	}
}

func subAccountKey(owner tidal.Address, id tidal.Bytes32) tidal.Bytes32 {
	return tidal.Blake2b(owner.Bytes(), id.Bytes())
}

func (s *storage) getSubAccount(owner tidal.Address, id tidal.Bytes32) (*SubAccount, error) {
	sub, err := s.subAccounts.Get(subAccountKey(owner, id))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sub-account")
	}
	return &sub, nil
}

func (s *storage) setSubAccount(owner tidal.Address, id tidal.Bytes32, sub *SubAccount) error {
	if err := s.subAccounts.Set(subAccountKey(owner, id), *sub); err != nil {
		return errors.Wrap(err, "failed to set sub-account")
	}
	return nil
}

func (s *storage) getActiveCount(owner tidal.Address) (uint64, error) {
	count, err := s.activeCounts.Get(owner)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get active count")
	}
	return count, nil
}

func (s *storage) setActiveCount(owner tidal.Address, count uint64) error {
	if err := s.activeCounts.Set(owner, count); err != nil {
		return errors.Wrap(err, "failed to set active count")
	}
	return nil
}
