// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package pods

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/tidalprotocol/tidal/api/utils"
	"github.com/tidalprotocol/tidal/core"
	"github.com/tidalprotocol/tidal/tidal"
)

type Pods struct {
	core *core.Core
}

func New(core *core.Core) *Pods {
	return &Pods{core}
}

// Checkpoint is the JSON form of an open reconciliation round.
type Checkpoint struct {
	Timestamp       uint64        `json:"timestamp"`
	ReferenceRoot   tidal.Bytes32 `json:"referenceRoot"`
	ProofsRemaining uint32        `json:"proofsRemaining"`
	ExecSnapshot    uint64        `json:"execSnapshot"`
	PrevBalances    uint64        `json:"prevBalances"`
	NetDelta        int64         `json:"netDelta"`
	ExitedGrains    uint64        `json:"exitedGrains"`
}

// Pod is the JSON form of a pod record.
type Pod struct {
	LastTimestamp     uint64      `json:"lastTimestamp"`
	BalanceIncluded   uint64      `json:"balanceIncluded"`
	ActiveSubAccounts uint64      `json:"activeSubAccounts"`
	Current           *Checkpoint `json:"current"`
}

// SubAccount is the JSON form of a sub-account record.
type SubAccount struct {
	ExternalIndex  uint64 `json:"externalIndex"`
	LastBalance    uint64 `json:"lastBalance"`
	LastReconciled uint64 `json:"lastReconciled"`
	Status         uint8  `json:"status"`
}

func (p *Pods) handleGetPod(w http.ResponseWriter, req *http.Request) error {
	owner, err := tidal.ParseAddress(mux.Vars(req)["owner"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "owner"))
	}
	pod, err := p.core.GetPod(*owner)
	if err != nil {
		return err
	}
	active, err := p.core.ActiveSubAccounts(*owner)
	if err != nil {
		return err
	}
	out := &Pod{
		LastTimestamp:     pod.LastTimestamp,
		BalanceIncluded:   pod.BalanceIncluded,
		ActiveSubAccounts: active,
	}
	if pod.Current != nil {
		out.Current = &Checkpoint{
			Timestamp:       pod.Current.Timestamp,
			ReferenceRoot:   pod.Current.ReferenceRoot,
			ProofsRemaining: pod.Current.ProofsRemaining,
			ExecSnapshot:    pod.Current.ExecSnapshot,
			PrevBalances:    pod.Current.PrevBalances,
			NetDelta:        pod.Current.NetDelta(),
			ExitedGrains:    pod.Current.ExitedGrains,
		}
	}
	return utils.WriteJSON(w, out)
}

func (p *Pods) handleGetSubAccount(w http.ResponseWriter, req *http.Request) error {
	owner, err := tidal.ParseAddress(mux.Vars(req)["owner"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "owner"))
	}
	id, err := tidal.ParseBytes32(mux.Vars(req)["id"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "id"))
	}
	sub, err := p.core.GetSubAccount(*owner, id)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &SubAccount{
		ExternalIndex:  sub.ExternalIndex,
		LastBalance:    sub.LastBalance,
		LastReconciled: sub.LastReconciled,
		Status:         sub.Status,
	})
}

func (p *Pods) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/{owner}").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(p.handleGetPod))
	sub.Path("/{owner}/subaccounts/{id}").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(p.handleGetSubAccount))
}
