// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestWebhookAnnounce(t *testing.T) {
	var mtx sync.Mutex
	var received []string
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			var payload struct {
				Content string `json:"content"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			mtx.Lock()
			received = append(received, payload.Content)
			mtx.Unlock()
		}))
	defer srv.Close()

	webhook := NewWebhook(srv.URL)
	webhook.Announce("Pool paid out: 1.5 XCN to 3 miner(s)")

	mtx.Lock()
	defer mtx.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 delivered announcement, got %d",
			len(received))
	}
	if received[0] != "Pool paid out: 1.5 XCN to 3 miner(s)" {
		t.Fatalf("unexpected announcement %q", received[0])
	}
}

func TestWebhookRateLimit(t *testing.T) {
	var mtx sync.Mutex
	var count int
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			mtx.Lock()
			count++
			mtx.Unlock()
		}))
	defer srv.Close()

	webhook := NewWebhook(srv.URL)
	for i := 0; i < 20; i++ {
		webhook.Announce("spam")
	}

	mtx.Lock()
	defer mtx.Unlock()
	if count > announceBurst {
		t.Fatalf("expected at most %d deliveries, got %d",
			announceBurst, count)
	}
	if count == 0 {
		t.Fatal("expected at least one delivery")
	}
}
