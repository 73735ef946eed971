// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pinning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
)

func TestDefaultUpdateObserver(t *testing.T) {
	tests := []struct {
		name       string
		updateType certstore.UpdateType
		result     certstore.UpdateResult
		continued  int
		failed     int
	}{
		{"none", certstore.UpdateTypeNone, certstore.UpdateOK, 1, 0},
		{"silent ok", certstore.UpdateTypeSilent, certstore.UpdateOK, 1, 0},
		{"silent failure", certstore.UpdateTypeSilent, certstore.UpdateNetworkError, 1, 1},
		{"direct ok", certstore.UpdateTypeDirect, certstore.UpdateOK, 1, 0},
		{"direct failure", certstore.UpdateTypeDirect, certstore.UpdateInvalidSignature, 0, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var continued, failed int
			o := &DefaultUpdateObserver{
				Continue: func() { continued++ },
				Failed:   func(certstore.UpdateType, certstore.UpdateResult) { failed++ },
			}
			o.OnUpdateStarted(tc.updateType)
			o.OnUpdateFinished(tc.updateType, tc.result)
			assert.Equal(t, tc.continued, continued)
			assert.Equal(t, tc.failed, failed)
		})
	}
}

func TestDefaultUpdateObserver_NilCallbacks(t *testing.T) {
	o := &DefaultUpdateObserver{}
	assert.NotPanics(t, func() {
		o.OnUpdateStarted(certstore.UpdateTypeNone)
		o.OnUpdateFinished(certstore.UpdateTypeDirect, certstore.UpdateNetworkError)
	})
}

// scriptedUpdater replays one update type and result.
type scriptedUpdater struct {
	updateType certstore.UpdateType
	result     certstore.UpdateResult
	hold       chan struct{}
}

func (s *scriptedUpdater) UpdateAsync(_ certstore.UpdateMode, observer certstore.UpdateObserver) {
	go func() {
		observer.OnUpdateStarted(s.updateType)
		if s.hold != nil {
			<-s.hold
		}
		observer.OnUpdateFinished(s.updateType, s.result)
	}()
}

func TestWaitReady(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, WaitReady(ctx, &scriptedUpdater{updateType: certstore.UpdateTypeNone, result: certstore.UpdateOK}))
	assert.NoError(t, WaitReady(ctx, &scriptedUpdater{updateType: certstore.UpdateTypeDirect, result: certstore.UpdateOK}))
	assert.NoError(t, WaitReady(ctx, &scriptedUpdater{updateType: certstore.UpdateTypeSilent, result: certstore.UpdateNetworkError}))

	err := WaitReady(ctx, &scriptedUpdater{updateType: certstore.UpdateTypeDirect, result: certstore.UpdateStoreIsEmpty})
	assert.ErrorIs(t, err, ErrUpdateFailed)
	assert.Contains(t, err.Error(), "store_is_empty")
}

func TestWaitReady_SilentDoesNotWaitForFetch(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, WaitReady(ctx, &scriptedUpdater{updateType: certstore.UpdateTypeSilent, result: certstore.UpdateOK, hold: hold}))
}

func TestWaitReady_ContextDone(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := WaitReady(ctx, &scriptedUpdater{updateType: certstore.UpdateTypeDirect, result: certstore.UpdateOK, hold: hold})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitReady_Store(t *testing.T) {
	store := newStore(t)
	err := WaitReady(context.Background(), store)
	assert.ErrorIs(t, err, ErrUpdateFailed, "an empty store needs a direct update and the remote is down")
}
