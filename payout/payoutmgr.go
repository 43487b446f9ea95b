// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payout

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	errs "github.com/cnpool/payoutd/errors"
	"github.com/cnpool/payoutd/util"
)

const (
	// maxPaymentInterval is the upper bound on the periodic payment
	// interval. Anything above it is treated as a configuration error and
	// disables periodic payouts.
	maxPaymentInterval = 35791 * time.Minute

	// walletSaveInterval is how often the wallet is asked to persist its
	// state, independent of payment cycles.
	walletSaveInterval = time.Minute

	// feeSanityMin is the minimum plausible network fee, in atomic units,
	// of a broadcast transaction. A wallet response reporting a fee at or
	// below it is treated as malformed and no bookkeeping occurs.
	feeSanityMin = 10
)

// hexChars matches the leading hexadecimal run of a wallet-reported
// transaction hash.
var hexChars = regexp.MustCompile("[0-9a-f]+")

// PayoutMgrConfig contains all of the configuration values which should be
// provided when creating a new instance of PayoutMgr. All amounts are in
// atomic units.
type PayoutMgrConfig struct {
	// Ledger is the external balance ledger.
	Ledger Ledger
	// Cache is the local metadata cache.
	Cache *Cache
	// Wallet is the pool wallet daemon client.
	Wallet WalletClient
	// PaymentInterval is the period of the normal payment cycle timer.
	PaymentInterval time.Duration
	// RetryInterval is the cooldown applied after an insufficient-balance
	// outcome before the cycle is retried.
	RetryInterval time.Duration
	// WalletMin is the minimum balance eligible for payout.
	WalletMin int64
	// BaseFee is the flat payout fee charged at or below WalletMin.
	BaseFee int64
	// FeeSlewEnd is the amount at which the payout fee reaches zero.
	FeeSlewEnd int64
	// ExchangeMin is the minimum amount routed to the individual-payment
	// path for exchange-bound destinations.
	ExchangeMin int64
	// FeesForTXN is the amount reserved from the fee-collection balance
	// for the pool's own transaction costs.
	FeesForTXN int64
	// DustUnit is the truncation unit of payable amounts; remainders are
	// carried in the ledger to a future cycle.
	DustUnit int64
	// SigDigits is the number of atomic units per coin, used for display
	// formatting.
	SigDigits int64
	// MaxPaymentTxns is the maximum number of transfers carried by a
	// single batched wallet transaction.
	MaxPaymentTxns int
	// MixIn is the anonymity parameter of wallet transactions.
	MixIn uint32
	// TxFee is the network fee requested for wallet transactions.
	TxFee int64
	// UnlockTime is the unlock time requested for wallet transactions.
	UnlockTime int64
	// FeeAddress is the pool's fee-collection address.
	FeeAddress string
	// PoolAddress is the pool wallet's change address.
	PoolAddress string
	// CoinSymbol is the ticker used in logs and announcements.
	CoinSymbol string
	// IsIntegratedAddress reports whether the provided address embeds a
	// payment identifier.
	IsIntegratedAddress func(addr string) bool
	// SendAdminEmail notifies the pool operator of a fatal error. It must
	// never block payment logic.
	SendAdminEmail func(subject, body string)
	// AnnouncePayout announces a successful payout. It must never block
	// payment logic.
	AnnouncePayout func(msg string)
}

// PayoutMgr converts accumulated ledger balances into wallet transactions
// while protecting against double-payment, balance-check races, dust payouts
// and partial wallet failures. All wallet requests flow through a serialized
// payment queue; ledger bookkeeping happens strictly after wallet
// confirmation.
type PayoutMgr struct {
	cfg   *PayoutMgrConfig
	queue *paymentQueue

	mtx          sync.Mutex
	paymentTimer *time.Timer
	retryTimer   *time.Timer
	retryArmed   bool
	halted       bool

	cycleCh chan struct{}
}

// NewPayoutMgr creates a new payout manager.
func NewPayoutMgr(pCfg *PayoutMgrConfig) (*PayoutMgr, error) {
	const funcName = "NewPayoutMgr"
	if pCfg.FeeSlewEnd <= pCfg.WalletMin {
		desc := fmt.Sprintf("%s: fee slew end (%d) must exceed the "+
			"minimum payout (%d)", funcName, pCfg.FeeSlewEnd,
			pCfg.WalletMin)
		return nil, errs.PoolError(errs.CreateAmount, desc)
	}
	if pCfg.DustUnit <= 0 {
		desc := fmt.Sprintf("%s: dust unit must be positive, got %d",
			funcName, pCfg.DustUnit)
		return nil, errs.PoolError(errs.CreateAmount, desc)
	}
	if pCfg.MaxPaymentTxns <= 0 {
		desc := fmt.Sprintf("%s: max payment txns must be positive, "+
			"got %d", funcName, pCfg.MaxPaymentTxns)
		return nil, errs.PoolError(errs.CreateAmount, desc)
	}
	pm := &PayoutMgr{
		cfg:     pCfg,
		cycleCh: make(chan struct{}, 1),
	}
	pm.queue = newPaymentQueue(pm.processPayment, pm.handleQueueDrain)
	return pm, nil
}

// coin formats the provided atomic amount as a decimal coin string.
func (pm *PayoutMgr) coin(atoms int64) string {
	return util.CoinToDecimal(atoms, pm.cfg.SigDigits)
}

// triggerCycle requests a payment cycle run. Requests made while a cycle is
// already pending coalesce.
func (pm *PayoutMgr) triggerCycle() {
	select {
	case pm.cycleCh <- struct{}{}:
	default:
	}
}

// startPaymentTimer arms the normal periodic payment timer. Intervals above
// the supported maximum are a configuration error: they are logged and
// periodic payouts stay disabled.
func (pm *PayoutMgr) startPaymentTimer() {
	if pm.cfg.PaymentInterval > maxPaymentInterval {
		log.Errorf("payment interval %v exceeds the maximum of %v, "+
			"periodic payouts disabled", pm.cfg.PaymentInterval,
			maxPaymentInterval)
		return
	}
	log.Debugf("Next normal payment cycle in %v", pm.cfg.PaymentInterval)
	pm.mtx.Lock()
	defer pm.mtx.Unlock()
	if pm.paymentTimer != nil {
		pm.paymentTimer.Stop()
	}
	pm.paymentTimer = time.AfterFunc(pm.cfg.PaymentInterval, func() {
		pm.triggerCycle()
		pm.startPaymentTimer()
	})
}

// stopPaymentTimer cancels any pending normal-cycle timer. A payment attempt
// in progress must not be concurrently re-triggered by the periodic timer.
func (pm *PayoutMgr) stopPaymentTimer() {
	pm.mtx.Lock()
	defer pm.mtx.Unlock()
	if pm.paymentTimer != nil {
		pm.paymentTimer.Stop()
		pm.paymentTimer = nil
	}
}

// scheduleRetry arms the retry cooldown timer after an insufficient-balance
// outcome. The guard flag ensures only one retry timer is armed per cycle
// even if multiple tasks fail for the same reason.
func (pm *PayoutMgr) scheduleRetry() {
	pm.mtx.Lock()
	defer pm.mtx.Unlock()
	if pm.retryArmed || pm.halted {
		return
	}
	pm.retryArmed = true
	pm.retryTimer = time.AfterFunc(pm.cfg.RetryInterval, pm.triggerCycle)
}

// haltPayouts stops all automatic payment scheduling after a fatal wallet
// error and notifies the pool operator. Automatic retries against a
// malfunctioning wallet risk burnt or duplicate funds, so resuming requires
// a manual restart.
func (pm *PayoutMgr) haltPayouts(subject string, err error) {
	pm.mtx.Lock()
	alreadyHalted := pm.halted
	pm.halted = true
	pm.mtx.Unlock()
	pm.stopPaymentTimer()

	log.Errorf("%s: %v", subject, err)
	log.Error("No further payments will be made until the payout " +
		"daemon is restarted")
	if !alreadyHalted && pm.cfg.SendAdminEmail != nil {
		body := fmt.Sprintf("Hello,\r\nThe payout daemon has hit an "+
			"issue: %v. Please investigate and restart the payout "+
			"daemon as appropriate.", err)
		pm.cfg.SendAdminEmail(subject, body)
	}
}

// handleQueueDrain runs whenever the payment queue empties. It clears the
// retry guard, records the cycle completion time and re-arms the normal
// periodic cycle unless payouts have been halted.
func (pm *PayoutMgr) handleQueueDrain() {
	pm.mtx.Lock()
	pm.retryArmed = false
	halted := pm.halted
	pm.mtx.Unlock()
	if halted {
		return
	}
	pm.startPaymentTimer()
	err := pm.cfg.Cache.persistLastPaymentCycle(time.Now().Unix())
	if err != nil {
		log.Errorf("unable to persist last payment cycle time: %v", err)
	}
}

// makePayments runs one full payment cycle: an exhaustive eligibility scan
// followed by dispatch of every resulting wallet transaction request through
// the serialized payment queue.
func (pm *PayoutMgr) makePayments(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	pm.mtx.Lock()
	halted := pm.halted
	pm.mtx.Unlock()
	if halted {
		return
	}

	batchable, individual, err := pm.selectPayees()
	if err != nil {
		log.Errorf("unable to select payees: %v", err)
		return
	}

	reqs := make([]*paymentRequest, 0, len(individual)+1)
	for _, payee := range individual {
		reqs = append(reqs, pm.newPaymentIDRequest(payee))
	}
	for _, group := range batchPayees(batchable, pm.cfg.MaxPaymentTxns) {
		log.Infof("Paying out %d payees in one transaction", len(group))
		reqs = append(reqs, pm.newBatchRequest(group))
	}
	if len(reqs) == 0 {
		log.Debugf("No payees eligible this cycle")
		return
	}
	pm.queue.push(ctx, reqs...)
}

// processPayment executes one wallet transaction request. It is only ever
// invoked by the payment queue worker, one request at a time.
func (pm *PayoutMgr) processPayment(ctx context.Context, task *paymentRequest) {
	pm.stopPaymentTimer()
	if ctx.Err() != nil {
		return
	}

	total := task.req.totalAmount()

	// The wallet will burn coins if asked to transfer more than its
	// unlocked balance, so the balance is checked before every send.
	available, err := pm.cfg.Wallet.Balance(ctx)
	if err != nil {
		pm.haltPayouts("Payout daemon unable to check wallet balance", err)
		return
	}
	if available < total {
		log.Errorf("wallet only has %s %s unlocked, unable to pay %s "+
			"%s; retrying in %v", pm.coin(available), pm.cfg.CoinSymbol,
			pm.coin(total), pm.cfg.CoinSymbol, pm.cfg.RetryInterval)
		pm.scheduleRetry()
		return
	}

	result, err := pm.cfg.Wallet.SendTransaction(ctx, task.req)
	if err != nil {
		// The pre-check races the wallet's own bookkeeping, so the
		// wallet may still report insufficient unlocked balance.
		if errors.Is(err, errs.InsufficientFunds) {
			log.Errorf("insufficient funds reported by the wallet, "+
				"retrying in %v", pm.cfg.RetryInterval)
			pm.scheduleRetry()
			return
		}
		pm.haltPayouts("Payout daemon unable to make payment", err)
		return
	}

	fee := result.Fee
	if fee <= 0 {
		// The send call does not report the paid network fee; it has
		// to be fetched with a follow-up transaction lookup.
		fee, err = pm.cfg.Wallet.TransactionFee(ctx, result.TransactionHash)
		if err != nil {
			log.Errorf("unable to find transaction information for "+
				"payment: %v", err)
			return
		}
	}
	if fee <= feeSanityMin {
		log.Errorf("unknown error from the wallet: implausible "+
			"transaction fee %d for tx %s, payment not recorded", fee,
			result.TransactionHash)
		return
	}

	txHash := hexChars.FindString(result.TransactionHash)
	if txHash == "" {
		log.Errorf("unknown error from the wallet: unusable "+
			"transaction hash %q, payment not recorded",
			result.TransactionHash)
		return
	}

	pm.recordPayout(task, txHash, fee)
}

// recordPayout applies the ledger bookkeeping for a confirmed wallet
// transaction: one transaction record, then per covered payee a balance
// decrement by the full pre-fee amount and a payment row for the net amount.
func (pm *PayoutMgr) recordPayout(task *paymentRequest, txHash string, fee int64) {
	var total int64
	for _, payee := range task.payees {
		total += payee.Amount
	}

	now := time.Now().Unix()
	txn := &TransactionRecord{
		TotalAmount: total,
		TxHash:      txHash,
		MixIn:       pm.cfg.MixIn,
		Fee:         fee,
		Payees:      uint32(len(task.payees)),
		CreatedOn:   now,
	}
	// Batched multi-payee transactions have no single destination; the
	// address and payment identifier stay empty for them.
	if len(task.payees) == 1 {
		txn.Address = task.payees[0].Address
		txn.PaymentID = task.payees[0].PaymentID
		txn.ForeignChain = task.payees[0].ForeignChain
	}

	txnID, err := pm.cfg.Ledger.persistTransaction(txn)
	if err != nil {
		log.Errorf("unable to persist transaction %s: %v", txHash, err)
		return
	}

	for _, payee := range task.payees {
		payee.TransactionID = txnID
		err := pm.cfg.Ledger.decrementBalance(payee.LedgerRowID, payee.Amount)
		if err != nil {
			log.Errorf("unable to decrement balance row %d by %d: %v",
				payee.LedgerRowID, payee.Amount, err)
			continue
		}
		err = pm.cfg.Ledger.persistPayment(&PaymentRecord{
			UnlockedOn:    now,
			PaidOn:        now,
			PoolType:      payee.PoolType,
			Address:       payee.Address,
			TransactionID: txnID,
			ForeignChain:  payee.ForeignChain,
			Amount:        payee.netAmount(),
			PaymentID:     payee.PaymentID,
			TransferFee:   payee.Fee,
		})
		if err != nil {
			log.Errorf("unable to persist payment for %s: %v",
				payee.ID(), err)
			continue
		}
		log.Infof("Payment made to %s for %s %s with a %s %s payout fee",
			payee.Address, pm.coin(payee.netAmount()), pm.cfg.CoinSymbol,
			pm.coin(payee.Fee), pm.cfg.CoinSymbol)
	}
	log.Infof("Paid a total of %s %s to %d payee(s) in tx %s, network "+
		"fee %s %s", pm.coin(total), pm.cfg.CoinSymbol, len(task.payees),
		txHash, pm.coin(fee), pm.cfg.CoinSymbol)

	if pm.cfg.AnnouncePayout != nil {
		pm.cfg.AnnouncePayout(fmt.Sprintf("Pool paid out: %s %s to %d "+
			"miner(s)", pm.coin(total), pm.cfg.CoinSymbol,
			len(task.payees)))
	}
}

// keepWalletAlive periodically asks the wallet to persist its state, to
// bound data loss on wallet-process failure. It runs independently of
// payment cycles.
func (pm *PayoutMgr) keepWalletAlive(ctx context.Context) {
	if err := pm.cfg.Wallet.Save(ctx); err != nil {
		log.Errorf("unable to save wallet state: %v", err)
	}
	ticker := time.NewTicker(walletSaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pm.cfg.Wallet.Save(ctx); err != nil {
				log.Errorf("unable to save wallet state: %v", err)
			}
		}
	}
}

// Run starts the payout manager: the wallet keep-alive task, the periodic
// payment timer and an immediate first payment cycle. It blocks until the
// provided context is cancelled and all in-flight queue tasks complete.
func (pm *PayoutMgr) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pm.keepWalletAlive(ctx)
	}()

	log.Infof("Payout timers: normal cycle every %v, insufficient-funds "+
		"retry after %v", pm.cfg.PaymentInterval, pm.cfg.RetryInterval)
	pm.startPaymentTimer()
	pm.makePayments(ctx)

	for {
		select {
		case <-ctx.Done():
			pm.stopPaymentTimer()
			pm.mtx.Lock()
			if pm.retryTimer != nil {
				pm.retryTimer.Stop()
			}
			pm.mtx.Unlock()
			pm.queue.wait()
			wg.Wait()
			return
		case <-pm.cycleCh:
			pm.makePayments(ctx)
		}
	}
}
