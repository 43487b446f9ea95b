// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

// ConfigFileContents is a string containing the commented example config for
// payoutd.
const ConfigFileContents = `[Application Options]
; ------------------------------------------------------------------------------
; Debug settings
; ------------------------------------------------------------------------------
; Debug logging level.
; Valid levels are {trace, debug, info, warn, error, critical}
; You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set
; log level for individual subsystems.  Use payoutd --debuglevel=show to
; list available subsystems.
; debuglevel=

; ------------------------------------------------------------------------------
; Data settings
; ------------------------------------------------------------------------------
; The home directory of payoutd.
; homedir=

; The config file directory.
; configfile=

; The log file directory.
; logdir=

; The local payout cache file.
; cachefile=

; ------------------------------------------------------------------------------
; Ledger settings
; ------------------------------------------------------------------------------
; The postgres connection details for the shared pool ledger.
; pghost=
; pgport=
; pguser=
; pgpass=
; pgdbname=

; ------------------------------------------------------------------------------
; Wallet settings
; ------------------------------------------------------------------------------
; The wallet daemon RPC host and port.
; wallethost=
; walletport=

; Connect to the wallet daemon via https.
; wallettls=

; Path to a file containing user:pass basic auth credentials for the wallet
; daemon RPC endpoint.
; walletauthfile=

; The pool wallet's change address.
; pooladdress=

; The pool's fee collection address.
; feeaddress=

; ------------------------------------------------------------------------------
; Payout settings
; ------------------------------------------------------------------------------
; The period of the normal payment cycle, in minutes.
; paymentinterval=

; The cooldown before a payment cycle is retried after the wallet reports
; insufficient unlocked funds, in minutes.
; retryinterval=

; The minimum balance eligible for payout, in coins.
; walletmin=

; The flat payout fee charged on minimum payouts, in coins.  The fee tapers
; linearly to zero at feeslewend.
; payoutfee=
; feeslewend=

; The minimum amount routed through an individual transaction for
; exchange-bound destinations, in coins.
; exchangemin=

; The amount reserved from the fee collection balance to cover the pool's own
; transaction costs, in coins.
; feesfortxn=

; The payable amount unit, in coins.  Amounts are truncated to a multiple of
; it and remainders stay in the ledger.
; denomunit=

; The number of atomic units per coin.
; sigdigits=

; The ticker symbol used in logs and announcements.
; coinsymbol=

; The address length identifying integrated addresses.
; integratedaddrlen=

; The maximum number of transfers carried by one batched transaction.
; maxpaymenttxns=

; The anonymity (mixin) parameter of wallet transactions.
; mixin=

; The network fee requested for wallet transactions, in coins.
; txfee=

; The unlock time requested for wallet transactions.
; unlocktime=

; ------------------------------------------------------------------------------
; Notification settings
; ------------------------------------------------------------------------------
; The pool operator email address for fatal error alerts.  Leave empty to
; disable alert email.
; adminemail=

; The sender address and SMTP relay (host:port) for alert email.
; emailfrom=
; smtphost=

; Optional SMTP PLAIN auth credentials.
; smtpuser=
; smtppass=

; A chat webhook endpoint for payout announcements.  Leave empty to disable
; announcements.
; webhookurl=
`
