// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package notify delivers operator alerts and payout announcements.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"time"

	"golang.org/x/time/rate"

	errs "github.com/cnpool/payoutd/errors"
)

const (
	// announceTokenRate is the token refill rate for the announcement
	// bucket, per second. Payouts happen at most a few times per hour, so
	// one announcement every ten seconds comfortably covers bursts of
	// batched transactions while protecting the webhook endpoint.
	announceTokenRate = 0.1

	// announceBurst is the maximum announcement burst allowed.
	announceBurst = 3

	// webhookTimeout bounds a single webhook delivery.
	webhookTimeout = 10 * time.Second
)

// Mailer sends plain-text email to the pool operator via an SMTP relay.
type Mailer struct {
	// Host is the SMTP relay in host:port form.
	Host string
	// From is the sender address.
	From string
	// User and Pass are optional PLAIN auth credentials for the relay.
	User string
	Pass string
}

// SendMail sends an email with the provided subject and body to the
// recipient.
func (m *Mailer) SendMail(to, subject, body string) error {
	const funcName = "SendMail"
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.From, to, subject, body)
	var auth smtp.Auth
	if m.User != "" {
		host, _, err := net.SplitHostPort(m.Host)
		if err != nil {
			desc := fmt.Sprintf("%s: invalid smtp host %q: %v",
				funcName, m.Host, err)
			return errs.PoolError(errs.Notify, desc)
		}
		auth = smtp.PlainAuth("", m.User, m.Pass, host)
	}
	err := smtp.SendMail(m.Host, auth, m.From, []string{to}, []byte(msg))
	if err != nil {
		desc := fmt.Sprintf("%s: unable to send mail to %s: %v",
			funcName, to, err)
		return errs.PoolError(errs.Notify, desc)
	}
	return nil
}

// Webhook posts payout announcements to a chat webhook endpoint. Deliveries
// are rate limited and failures are logged rather than propagated, payout
// bookkeeping must never stall on an announcement.
type Webhook struct {
	url     string
	limiter *rate.Limiter
	client  *http.Client
}

// NewWebhook creates a webhook announcer for the provided endpoint.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:     url,
		limiter: rate.NewLimiter(announceTokenRate, announceBurst),
		client:  &http.Client{Timeout: webhookTimeout},
	}
}

// Announce posts the provided message to the webhook endpoint. Messages
// beyond the configured rate are dropped.
func (w *Webhook) Announce(msg string) {
	if !w.limiter.Allow() {
		log.Debugf("announcement rate exceeded, dropping: %s", msg)
		return
	}
	payload, err := json.Marshal(struct {
		Content string `json:"content"`
	}{msg})
	if err != nil {
		log.Errorf("unable to marshal announcement: %v", err)
		return
	}
	resp, err := w.client.Post(w.url, "application/json",
		bytes.NewReader(payload))
	if err != nil {
		log.Errorf("unable to deliver announcement: %v", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		log.Errorf("announcement endpoint returned status %d",
			resp.StatusCode)
	}
}
