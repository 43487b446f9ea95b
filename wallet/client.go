// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet implements a JSON-RPC client for the pool's wallet daemon.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	errs "github.com/cnpool/payoutd/errors"
	"github.com/cnpool/payoutd/payout"
)

// defaultRequestTimeout bounds a single wallet RPC round trip. Sends of large
// batched transactions can take minutes on a busy wallet.
const defaultRequestTimeout = 5 * time.Minute

// insufficientFundsMsg is the error message the wallet daemon returns when
// asked to transfer more than its unlocked balance.
const insufficientFundsMsg = "Wrong amount"

// ClientConfig contains all of the configuration values which should be
// provided when creating a new instance of Client.
type ClientConfig struct {
	// Host is the wallet daemon RPC host.
	Host string
	// Port is the wallet daemon RPC port.
	Port uint32
	// TLS indicates whether the wallet RPC endpoint expects https.
	TLS bool
	// AuthFile is an optional path to a file holding "user:pass" basic
	// auth credentials for the wallet RPC endpoint.
	AuthFile string
	// Timeout overrides the default request timeout when positive.
	Timeout time.Duration
}

// Client is a wallet daemon RPC client.
type Client struct {
	url        string
	authHeader string
	client     *http.Client
}

type rpcRequest struct {
	ID      string      `json:"id"`
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// NewClient creates a new wallet daemon client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	const funcName = "NewClient"
	scheme := "http"
	if cfg.TLS {
		scheme = "https"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	c := &Client{
		url:    fmt.Sprintf("%s://%s:%d/json_rpc", scheme, cfg.Host, cfg.Port),
		client: &http.Client{Timeout: timeout},
	}
	if cfg.AuthFile != "" {
		creds, err := os.ReadFile(cfg.AuthFile)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to read wallet auth file: %v",
				funcName, err)
			return nil, errs.PoolError(errs.WalletResponse, desc)
		}
		pair := strings.SplitN(strings.TrimSpace(string(creds)), ":", 2)
		if len(pair) != 2 {
			desc := fmt.Sprintf("%s: wallet auth file must contain "+
				"user:pass", funcName)
			return nil, errs.PoolError(errs.WalletResponse, desc)
		}
		req, _ := http.NewRequest("GET", c.url, nil)
		req.SetBasicAuth(pair[0], pair[1])
		c.authHeader = req.Header.Get("Authorization")
	}
	return c, nil
}

// call performs one JSON-RPC round trip against the wallet daemon and
// unmarshals the result into the provided value when non-nil. Transport
// failures are reported with kind Disconnected; RPC-level errors with the
// provided kind, except the insufficient-funds message which always maps to
// kind InsufficientFunds.
func (c *Client) call(ctx context.Context, method string, params, result interface{}, kind errs.ErrorKind) error {
	const funcName = "call"
	body, err := json.Marshal(&rpcRequest{
		ID:      "0",
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		desc := fmt.Sprintf("%s: unable to marshal %s request: %v",
			funcName, method, err)
		return errs.WalletError(kind, desc)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url,
		bytes.NewReader(body))
	if err != nil {
		desc := fmt.Sprintf("%s: unable to create %s request: %v",
			funcName, method, err)
		return errs.WalletError(kind, desc)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	log.Tracef("calling wallet method %s", method)
	resp, err := c.client.Do(req)
	if err != nil {
		desc := fmt.Sprintf("%s: wallet daemon unreachable: %v",
			funcName, err)
		return errs.WalletError(errs.Disconnected, desc)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to read %s response: %v",
			funcName, method, err)
		return errs.WalletError(errs.Disconnected, desc)
	}
	if resp.StatusCode != http.StatusOK {
		desc := fmt.Sprintf("%s: wallet daemon returned status %d for %s",
			funcName, resp.StatusCode, method)
		return errs.WalletError(kind, desc)
	}

	var rpcResp rpcResponse
	err = json.Unmarshal(raw, &rpcResp)
	if err != nil {
		desc := fmt.Sprintf("%s: malformed %s response: %v", funcName,
			method, err)
		return errs.WalletError(errs.WalletResponse, desc)
	}
	if rpcResp.Error != nil {
		if strings.Contains(rpcResp.Error.Message, insufficientFundsMsg) {
			desc := fmt.Sprintf("%s: wallet reports insufficient "+
				"unlocked funds for %s", funcName, method)
			return errs.WalletError(errs.InsufficientFunds, desc)
		}
		desc := fmt.Sprintf("%s: wallet error on %s: %s (code %d)",
			funcName, method, rpcResp.Error.Message, rpcResp.Error.Code)
		return errs.WalletError(kind, desc)
	}
	if result != nil {
		err = json.Unmarshal(rpcResp.Result, result)
		if err != nil {
			desc := fmt.Sprintf("%s: malformed %s result: %v", funcName,
				method, err)
			return errs.WalletError(errs.WalletResponse, desc)
		}
	}
	return nil
}

// Balance returns the wallet's available (unlocked) balance in atomic units.
func (c *Client) Balance(ctx context.Context) (int64, error) {
	var result struct {
		AvailableBalance int64 `json:"availableBalance"`
	}
	err := c.call(ctx, "getBalance", nil, &result, errs.GetBalance)
	if err != nil {
		return 0, err
	}
	return result.AvailableBalance, nil
}

// SendTransaction asks the wallet to create and broadcast a transaction with
// the requested transfers. The returned fee is zero when the wallet does not
// report it, in which case it must be looked up with TransactionFee.
func (c *Client) SendTransaction(ctx context.Context, req *payout.TransferRequest) (*payout.SendResult, error) {
	var result payout.SendResult
	err := c.call(ctx, "sendTransaction", req, &result, errs.SendTx)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// TransactionFee looks up the network fee paid by the referenced wallet
// transaction.
func (c *Client) TransactionFee(ctx context.Context, txHash string) (int64, error) {
	params := struct {
		TransactionHash string `json:"transactionHash"`
	}{txHash}
	var result struct {
		Transaction struct {
			Fee int64 `json:"fee"`
		} `json:"transaction"`
	}
	err := c.call(ctx, "getTransaction", params, &result, errs.FetchTx)
	if err != nil {
		return 0, err
	}
	return result.Transaction.Fee, nil
}

// Save asks the wallet daemon to persist its state to disk.
func (c *Client) Save(ctx context.Context) error {
	return c.call(ctx, "save", nil, nil, errs.WalletSave)
}
