// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pinning

import (
	"context"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
)

// DefaultUpdateObserver decides when an application may proceed after
// requesting an update. Continue runs once: at start for Silent and None
// updates, or after a successful Direct update. Failed runs for every
// non-OK result.
type DefaultUpdateObserver struct {
	Continue func()
	Failed   func(updateType certstore.UpdateType, result certstore.UpdateResult)

	once sync.Once
}

var _ certstore.UpdateObserver = (*DefaultUpdateObserver)(nil)

// OnUpdateStarted implements certstore.UpdateObserver.
func (o *DefaultUpdateObserver) OnUpdateStarted(updateType certstore.UpdateType) {
	if updateType != certstore.UpdateTypeDirect {
		o.proceed()
	}
}

// OnUpdateFinished implements certstore.UpdateObserver.
func (o *DefaultUpdateObserver) OnUpdateFinished(updateType certstore.UpdateType, result certstore.UpdateResult) {
	if result == certstore.UpdateOK {
		if updateType == certstore.UpdateTypeDirect {
			o.proceed()
		}
		return
	}
	if o.Failed != nil {
		o.Failed(updateType, result)
	}
}

func (o *DefaultUpdateObserver) proceed() {
	o.once.Do(func() {
		if o.Continue != nil {
			o.Continue()
		}
	})
}

// Updater is implemented by *certstore.Store.
type Updater interface {
	UpdateAsync(mode certstore.UpdateMode, observer certstore.UpdateObserver)
}

// WaitReady requests a default update and blocks until the store is usable:
// immediately when cached data is valid, or once a blocking Direct update
// completes. A failed Direct update returns ErrUpdateFailed. Failures of
// background updates are ignored.
func WaitReady(ctx context.Context, u Updater) error {
	ready := make(chan struct{})
	failed := make(chan certstore.UpdateResult, 1)
	u.UpdateAsync(certstore.UpdateModeDefault, &DefaultUpdateObserver{
		Continue: func() { close(ready) },
		Failed: func(updateType certstore.UpdateType, result certstore.UpdateResult) {
			if updateType == certstore.UpdateTypeDirect {
				failed <- result
			}
		},
	})

	select {
	case <-ready:
		return nil
	case result := <-failed:
		return fmt.Errorf("%w: %s", ErrUpdateFailed, result)
	case <-ctx.Done():
		return ctx.Err()
	}
}
