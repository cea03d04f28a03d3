// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventbus provides subject-keyed publish/subscribe for
// in-process event delivery. The relay server republishes inbound
// client frames on a bus, the presence client republishes hub events
// it does not handle itself, and the session coordinator forwards bus
// traffic to the UI layer as push events.
//
// Delivery is non-blocking: a subscriber that does not drain its
// channel loses messages rather than stalling the publisher. Channel
// capacity is sized so this only happens to a subscriber that has
// stopped reading entirely.
package eventbus

import (
	"encoding/json"
	"sync"
)

// subscriberBuffer is the per-subscription channel capacity.
const subscriberBuffer = 16

// Message is one published event: a subject naming what happened and
// an opaque JSON payload. Subscribers decode Data into whatever shape
// the subject implies.
type Message struct {
	Subject string
	Data    json.RawMessage
}

// Bus routes messages from publishers to subject-keyed subscribers.
// The zero value is not usable; construct with New.
type Bus struct {
	mu        sync.Mutex
	bySubject map[string][]*subscription
	all       []*subscription
}

type subscription struct {
	channel chan Message
	closed  bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{bySubject: make(map[string][]*subscription)}
}

// Subscribe registers interest in one subject. The returned cancel
// function removes the subscription and closes the channel; it is safe
// to call more than once.
func (b *Bus) Subscribe(subject string) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{channel: make(chan Message, subscriberBuffer)}
	b.bySubject[subject] = append(b.bySubject[subject], sub)

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		close(sub.channel)
		b.bySubject[subject] = removeSubscription(b.bySubject[subject], sub)
	}
	return sub.channel, cancel
}

// SubscribeAll registers interest in every subject. Used by the
// session coordinator to forward all core events to the UI stream.
func (b *Bus) SubscribeAll() (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{channel: make(chan Message, subscriberBuffer)}
	b.all = append(b.all, sub)

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		close(sub.channel)
		b.all = removeSubscription(b.all, sub)
	}
	return sub.channel, cancel
}

// Publish delivers a message to every subscriber of its subject and
// every all-subjects subscriber. Delivery is non-blocking; messages to
// a full subscriber channel are dropped.
func (b *Bus) Publish(subject string, data json.RawMessage) {
	message := Message{Subject: subject, Data: data}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.bySubject[subject] {
		select {
		case sub.channel <- message:
		default:
		}
	}
	for _, sub := range b.all {
		select {
		case sub.channel <- message:
		default:
		}
	}
}

// PublishJSON marshals payload and publishes it under subject. A
// payload that cannot be marshaled is published with a null body —
// subjects carry meaning even when the payload is empty.
func (b *Bus) PublishJSON(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = json.RawMessage("null")
	}
	b.Publish(subject, data)
}

func removeSubscription(subs []*subscription, target *subscription) []*subscription {
	for i, sub := range subs {
		if sub == target {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}
