// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package core

import (
	"github.com/tidalprotocol/tidal/metrics"
)

var (
	metricsCheckpointsStarted   = metrics.LazyLoadCounter("checkpoints_started_count")
	metricsCheckpointsFinalized = metrics.LazyLoadCounter("checkpoints_finalized_count")
	metricsProofsApplied        = metrics.LazyLoadCounter("proofs_applied_count")
	metricsProofsSkipped        = metrics.LazyLoadCounter("proofs_skipped_count")
	metricsSlashes              = metrics.LazyLoadCounter("slashes_count")
	metricsWithdrawalsQueued    = metrics.LazyLoadCounter("withdrawals_queued_count")
	metricsWithdrawalsCompleted = metrics.LazyLoadCounter("withdrawals_completed_count")
)
