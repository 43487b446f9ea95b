// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payout

// paymentRequest couples a wallet transfer request with the payees it
// covers, so their bookkeeping can be applied once the wallet confirms the
// transaction.
type paymentRequest struct {
	req    *TransferRequest
	payees []*Payee
}

// batchPayees partitions the provided batchable payees into consecutive
// groups of at most maxPerTxn entries. Each group becomes one wallet
// transaction request.
func batchPayees(payees []*Payee, maxPerTxn int) [][]*Payee {
	var groups [][]*Payee
	for len(payees) > 0 {
		size := maxPerTxn
		if size > len(payees) {
			size = len(payees)
		}
		groups = append(groups, payees[:size])
		payees = payees[size:]
	}
	return groups
}

// newBatchRequest creates a wallet transaction request covering the provided
// group of payees lacking payment identifiers.
func (pm *PayoutMgr) newBatchRequest(group []*Payee) *paymentRequest {
	transfers := make([]Transfer, 0, len(group))
	for _, payee := range group {
		transfers = append(transfers, Transfer{
			Amount:  payee.netAmount(),
			Address: payee.Address,
		})
	}
	return &paymentRequest{
		req: &TransferRequest{
			Transfers:     transfers,
			ChangeAddress: pm.cfg.PoolAddress,
			Fee:           pm.cfg.TxFee,
			UnlockTime:    pm.cfg.UnlockTime,
			Anonymity:     pm.cfg.MixIn,
		},
		payees: group,
	}
}

// newPaymentIDRequest creates a single-transfer wallet transaction request
// for a payee whose destination requires a payment identifier.
func (pm *PayoutMgr) newPaymentIDRequest(payee *Payee) *paymentRequest {
	return &paymentRequest{
		req: &TransferRequest{
			Transfers: []Transfer{{
				Amount:  payee.netAmount(),
				Address: payee.Address,
			}},
			ChangeAddress: pm.cfg.PoolAddress,
			Fee:           pm.cfg.TxFee,
			UnlockTime:    pm.cfg.UnlockTime,
			Anonymity:     pm.cfg.MixIn,
			PaymentID:     payee.PaymentID,
		},
		payees: []*Payee{payee},
	}
}
