// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lux-foundation/lux/lib/testutil"
)

func TestSubscribeReceivesMatchingSubject(t *testing.T) {
	bus := New()
	messages, cancel := bus.Subscribe("token")
	defer cancel()

	bus.Publish("token", json.RawMessage(`{"ok":true}`))

	message := testutil.RequireReceive(t, messages, time.Second, "token message")
	if message.Subject != "token" {
		t.Errorf("Subject = %q, want %q", message.Subject, "token")
	}
	if string(message.Data) != `{"ok":true}` {
		t.Errorf("Data = %s, want %s", message.Data, `{"ok":true}`)
	}
}

func TestSubscribeIgnoresOtherSubjects(t *testing.T) {
	bus := New()
	messages, cancel := bus.Subscribe("token")
	defer cancel()

	bus.Publish("presence", json.RawMessage(`{}`))

	select {
	case message := <-messages:
		t.Fatalf("unexpected message: %+v", message)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := New()
	messages, cancel := bus.SubscribeAll()
	defer cancel()

	bus.Publish("alpha", json.RawMessage(`1`))
	bus.Publish("beta", json.RawMessage(`2`))

	first := testutil.RequireReceive(t, messages, time.Second, "first message")
	second := testutil.RequireReceive(t, messages, time.Second, "second message")
	if first.Subject != "alpha" || second.Subject != "beta" {
		t.Errorf("subjects = %q, %q; want alpha, beta", first.Subject, second.Subject)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := New()
	messages, cancel := bus.Subscribe("token")
	cancel()

	// Channel is closed; receive yields the zero value immediately.
	if _, ok := <-messages; ok {
		t.Error("expected closed channel after cancel")
	}

	// Publishing after cancel must not panic.
	bus.Publish("token", json.RawMessage(`{}`))

	// Double cancel is a no-op.
	cancel()
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	bus := New()
	messages, cancel := bus.Subscribe("flood")
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish("flood", json.RawMessage(`{}`))
	}

	received := 0
	for {
		select {
		case <-messages:
			received++
		default:
			if received != subscriberBuffer {
				t.Errorf("received = %d, want %d (overflow dropped)", received, subscriberBuffer)
			}
			return
		}
	}
}

func TestPublishJSON(t *testing.T) {
	bus := New()
	messages, cancel := bus.Subscribe("status")
	defer cancel()

	bus.PublishJSON("status", map[string]string{"state": "online"})

	message := testutil.RequireReceive(t, messages, time.Second, "status message")
	var payload map[string]string
	if err := json.Unmarshal(message.Data, &payload); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if payload["state"] != "online" {
		t.Errorf("state = %q, want %q", payload["state"], "online")
	}
}
