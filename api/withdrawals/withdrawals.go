// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package withdrawals

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/tidalprotocol/tidal/api/utils"
	"github.com/tidalprotocol/tidal/core"
	"github.com/tidalprotocol/tidal/tidal"
)

type Withdrawals struct {
	core *core.Core
}

func New(core *core.Core) *Withdrawals {
	return &Withdrawals{core}
}

// Withdrawal is the JSON form of a queued withdrawal.
type Withdrawal struct {
	Staker        tidal.Address `json:"staker"`
	Operator      tidal.Address `json:"operator"`
	Strategy      tidal.Bytes32 `json:"strategy"`
	ScaledShares  string        `json:"scaledShares"`
	FactorAtQueue uint64        `json:"factorAtQueue"`
	SlashedScaled string        `json:"slashedScaled"`
	QueuedAt      uint32        `json:"queuedAt"`
	CompletableAt uint32        `json:"completableAt"`
	Nonce         uint64        `json:"nonce"`
}

func (ws *Withdrawals) handleGetWithdrawal(w http.ResponseWriter, req *http.Request) error {
	root, err := tidal.ParseBytes32(mux.Vars(req)["root"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "root"))
	}
	withdrawal, found, err := ws.core.GetWithdrawal(root)
	if err != nil {
		return err
	}
	if !found {
		return utils.NotFound(errors.New("withdrawal not found"))
	}
	return utils.WriteJSON(w, &Withdrawal{
		Staker:        withdrawal.Staker,
		Operator:      withdrawal.Operator,
		Strategy:      withdrawal.Strategy,
		ScaledShares:  withdrawal.ScaledShares.String(),
		FactorAtQueue: withdrawal.FactorAtQueue,
		SlashedScaled: withdrawal.SlashedScaled.String(),
		QueuedAt:      withdrawal.QueuedAt,
		CompletableAt: withdrawal.CompletableAt,
		Nonce:         withdrawal.Nonce,
	})
}

func (ws *Withdrawals) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/{root}").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(ws.handleGetWithdrawal))
}
