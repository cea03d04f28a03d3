// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"fmt"
	"sync"
)

// operation identifies the lock holder for error messages.
type operation struct {
	kind  string
	appID string
}

// operationLock is the single-flight guard over lifecycle operations.
// Acquire-or-reject: a request while the lock is held fails with
// ErrOperationInProgress rather than blocking or queuing.
type operationLock struct {
	mu      sync.Mutex
	current *operation
}

// acquire takes the lock for one operation and returns its release
// function. The release is safe to call exactly once on every exit
// path; releasing an already-superseded lock is a no-op.
func (l *operationLock) acquire(kind, appID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current != nil {
		return nil, fmt.Errorf("lifecycle: %w (%s %s)",
			ErrOperationInProgress, l.current.kind, l.current.appID)
	}

	held := &operation{kind: kind, appID: appID}
	l.current = held
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.current == held {
			l.current = nil
		}
	}, nil
}
