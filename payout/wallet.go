// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payout

import "context"

// Transfer represents a single amount/address pair of a wallet transfer
// request. The amount is the net value sent, in atomic units.
type Transfer struct {
	Amount  int64  `json:"amount"`
	Address string `json:"address"`
}

// TransferRequest represents a wallet transaction request covering one or
// more transfers. A request carries at most one payment identifier, which is
// why payees requiring one are never batched.
type TransferRequest struct {
	Transfers     []Transfer `json:"transfers"`
	ChangeAddress string     `json:"changeAddress"`
	Fee           int64      `json:"fee"`
	UnlockTime    int64      `json:"unlockTime"`
	Anonymity     uint32     `json:"anonymity"`
	PaymentID     string     `json:"paymentId,omitempty"`
}

// totalAmount returns the summed transfer value of the request.
func (req *TransferRequest) totalAmount() int64 {
	var total int64
	for _, transfer := range req.Transfers {
		total += transfer.Amount
	}
	return total
}

// SendResult represents the wallet's response to a transfer submission. The
// fee is zero when the wallet's send call does not report the paid network
// fee directly, in which case a follow-up transaction lookup retrieves it.
type SendResult struct {
	TransactionHash string `json:"transactionHash"`
	Fee             int64  `json:"fee"`
}

// WalletClient defines the functionality needed from the wallet daemon by
// the payout engine. Implementations must translate the wallet's domain
// "Wrong amount" failure into an errors.InsufficientFunds kind so the engine
// can distinguish recoverable insufficiency from fatal wallet errors.
type WalletClient interface {
	// Balance returns the available unlocked balance of the pool wallet.
	Balance(ctx context.Context) (int64, error)

	// SendTransaction submits the provided transfer request to the wallet
	// for broadcast.
	SendTransaction(ctx context.Context, req *TransferRequest) (*SendResult, error)

	// TransactionFee looks up the network fee paid by the referenced
	// transaction.
	TransactionFee(ctx context.Context, txHash string) (int64, error)

	// Save asks the wallet to persist its state.
	Save(ctx context.Context) error
}
