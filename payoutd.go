// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	errs "github.com/cnpool/payoutd/errors"
	"github.com/cnpool/payoutd/notify"
	"github.com/cnpool/payoutd/payout"
	"github.com/cnpool/payoutd/wallet"
)

// newPayoutMgr returns a new payout manager configured with the provided
// details that is ready to run.
func newPayoutMgr(cfg *config, ledger *payout.PostgresLedger, cache *payout.Cache) (*payout.PayoutMgr, error) {
	walletClient, err := wallet.NewClient(&wallet.ClientConfig{
		Host:     cfg.WalletHost,
		Port:     cfg.WalletPort,
		TLS:      cfg.WalletTLS,
		AuthFile: cfg.WalletAuthFile,
	})
	if err != nil {
		return nil, err
	}

	pCfg := &payout.PayoutMgrConfig{
		Ledger:          ledger,
		Cache:           cache,
		Wallet:          walletClient,
		PaymentInterval: cfg.paymentInterval,
		RetryInterval:   cfg.retryInterval,
		WalletMin:       cfg.walletMin,
		BaseFee:         cfg.payoutFee,
		FeeSlewEnd:      cfg.feeSlewEnd,
		ExchangeMin:     cfg.exchangeMin,
		FeesForTXN:      cfg.feesForTXN,
		DustUnit:        cfg.dustUnit,
		SigDigits:       cfg.SigDigits,
		MaxPaymentTxns:  cfg.MaxPaymentTxns,
		MixIn:           cfg.MixIn,
		TxFee:           cfg.txFee,
		UnlockTime:      cfg.UnlockTime,
		FeeAddress:      cfg.FeeAddress,
		PoolAddress:     cfg.PoolAddress,
		CoinSymbol:      cfg.CoinSymbol,
		IsIntegratedAddress: func(addr string) bool {
			return cfg.IntegratedAddrLen > 0 &&
				len(addr) == int(cfg.IntegratedAddrLen)
		},
	}

	if cfg.AdminEmail != "" {
		mailer := &notify.Mailer{
			Host: cfg.SMTPHost,
			From: cfg.EmailFrom,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
		}
		pCfg.SendAdminEmail = func(subject, body string) {
			go func() {
				err := mailer.SendMail(cfg.AdminEmail, subject, body)
				if err != nil {
					payLog.Errorf("unable to email admin: %v", err)
				}
			}()
		}
	}

	if cfg.WebhookURL != "" {
		webhook := notify.NewWebhook(cfg.WebhookURL)
		pCfg.AnnouncePayout = func(msg string) {
			go webhook.Announce(msg)
		}
	}

	return payout.NewPayoutMgr(pCfg)
}

// realMain is the real main function for payoutd.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is
// called.
func realMain() error {
	// Load configuration and parse command line.  This also initializes
	// logging and configures it accordingly.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	cfg, _, err := loadConfig(appName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context whose done channel will be closed when a shutdown
	// signal has been triggered from an OS signal such as SIGINT (Ctrl+C)
	// or when the returned cancel function is manually called.
	ctx, cancel := shutdownListener()
	defer cancel()
	defer payLog.Info("Shutdown complete")

	// Show version and home dir at startup.
	payLog.Infof("%s version %s (Go version %s %s/%s)", appName, version,
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	payLog.Infof("Home dir: %s", cfg.HomeDir)

	ledger, err := payout.InitPostgresLedger(cfg.PGHost, cfg.PGPort,
		cfg.PGUser, cfg.PGPass, cfg.PGDBName)
	if err != nil {
		payLog.Errorf("failed to initialize ledger: %v", err)
		return err
	}
	defer ledger.Close()

	cache, err := payout.InitCache(cfg.CacheFile)
	if err != nil {
		payLog.Errorf("failed to initialize payout cache: %v", err)
		return err
	}
	defer cache.Close()

	lastCycle, err := cache.FetchLastPaymentCycle()
	switch {
	case errors.Is(err, errs.ValueNotFound):
		payLog.Info("No previous payment cycle on record")
	case err != nil:
		payLog.Errorf("unable to load last payment cycle time: %v", err)
	default:
		payLog.Infof("Last payment cycle completed %v",
			time.Unix(lastCycle, 0))
	}

	mgr, err := newPayoutMgr(cfg, ledger, cache)
	if err != nil {
		payLog.Errorf("unable to initialize payout manager: %v", err)
		return err
	}

	// Run the payout manager until shutdown.
	mgr.Run(ctx)

	return nil
}

func main() {
	// Work around defer not working after os.Exit()
	if err := realMain(); err != nil {
		os.Exit(1)
	}
}
