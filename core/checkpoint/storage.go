// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package checkpoint

import (
	"github.com/pkg/errors"

	"github.com/tidalprotocol/tidal/store"
	"github.com/tidalprotocol/tidal/tidal"
)

var slotPods = tidal.BytesToBytes32([]byte("pods"))

type storage struct {
	pods *store.Mapping[tidal.Address, Pod]
}

func newStorage(sctx *store.Context) *storage {
	return &storage{
		pods: store.NewMapping[tidal.Address, Pod](sctx, slotPods),
	}
}

func (s *storage) getPod(owner tidal.Address) (*Pod, error) {
	pod, err := s.pods.Get(owner)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pod")
	}
	return &pod, nil
}

func (s *storage) setPod(owner tidal.Address, pod *Pod) error {
	if err := s.pods.Set(owner, *pod); err != nil {
		return errors.Wrap(err, "failed to set pod")
	}
	return nil
}
