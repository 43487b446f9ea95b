// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payout

import (
	"errors"
	"fmt"

	errs "github.com/cnpool/payoutd/errors"
)

// selectPayees scans all eligible balance rows and produces the payees for a
// payment cycle, split into the batching path and the individual-payment
// path. The scan is exhaustive before anything is dispatched since batch
// sizing requires the complete candidate set.
func (pm *PayoutMgr) selectPayees() (batchable []*Payee, individual []*Payee, err error) {
	const funcName = "selectPayees"

	rows, err := pm.cfg.Ledger.fetchEligibleBalances(pm.cfg.WalletMin)
	if err != nil {
		return nil, nil, err
	}
	log.Debugf("Loaded %d eligible balance rows for processing", len(rows))

	for _, row := range rows {
		payee := NewPayee(row)

		threshold, err := pm.cfg.Ledger.fetchPayoutThreshold(payee.ID())
		if err != nil {
			if !errors.Is(err, errs.ValueNotFound) {
				desc := fmt.Sprintf("%s: unable to fetch payout "+
					"threshold for %s: %v", funcName, payee.ID(), err)
				return nil, nil, errs.PoolError(errs.FetchEntry, desc)
			}
			threshold = 0
		}

		// The pool's own fee-collection balance either reserves funds
		// for the pool's transaction costs or is not paid at all. The
		// two branches are deliberate and must not be merged.
		switch {
		case payee.PoolType == PoolTypeFees &&
			payee.Address == pm.cfg.FeeAddress &&
			payee.Amount >= pm.cfg.FeesForTXN+pm.cfg.ExchangeMin:
			payee.Amount -= pm.cfg.FeesForTXN

		case payee.Address == pm.cfg.FeeAddress &&
			payee.PoolType == PoolTypeFees:
			log.Debugf("Unable to pay fee address, balance %d below "+
				"reserve", payee.Amount)
			payee.Amount = 0
		}

		// Truncate to a multiple of the dust unit. The remainder stays
		// in the ledger for a future cycle.
		if remainder := payee.Amount % pm.cfg.DustUnit; remainder != 0 {
			payee.Amount -= remainder
		}

		if payee.Amount <= threshold {
			continue
		}

		payee.setFee(pm.cfg.BaseFee, pm.cfg.WalletMin, pm.cfg.FeeSlewEnd)

		switch {
		case !payee.ForeignChain &&
			(payee.PaymentID != "" ||
				pm.cfg.IsIntegratedAddress(payee.Address) ||
				payee.Amount >= pm.cfg.ExchangeMin ||
				(threshold != 0 && payee.Amount > threshold)):
			log.Tracef("Adding %s to the individual-payment path, "+
				"balance %d", payee.ID(), payee.Amount)
			individual = append(individual, payee)

		case !payee.ForeignChain && payee.PaymentID == "" &&
			payee.Amount > 0 &&
			!pm.cfg.IsIntegratedAddress(payee.Address):
			log.Tracef("Adding %s to the batching path, balance %d",
				payee.ID(), payee.Amount)
			batchable = append(batchable, payee)
		}
	}

	return batchable, individual, nil
}
