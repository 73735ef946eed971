// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdate_ReplacesDatabase(t *testing.T) {
	env := newTestEnv(t, nil)
	e := env.signer.entry(t, "github.com", fingerprint("gh"), testNow.Add(30*24*time.Hour))
	env.remote.setBody(env.signer.payload(t, e))

	updateType, result, err := env.store.Update(context.Background(), UpdateModeForced)
	require.NoError(t, err)
	assert.Equal(t, UpdateTypeDirect, updateType)
	assert.Equal(t, UpdateOK, result)
	assert.Equal(t, int32(1), env.remote.calls.Load())
	assert.Equal(t, testServiceURL, env.remote.lastRequest().URL)

	assert.Equal(t, ValidationTrusted, env.store.ValidateFingerprint("github.com", fingerprint("gh")))
	assert.Equal(t, testNow.Add(DefaultPeriodicUpdateInterval).Unix(), env.store.Database().NextUpdate().Unix())
}

func TestUpdate_ReplacesWholesale(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.FallbackEntries = []Entry{{
			CommonName: "fallback.example.com", Fingerprint: fingerprint("fb"), Expires: testNow.Add(time.Hour),
		}}
	})
	expires := testNow.Add(30 * 24 * time.Hour)

	env.remote.setBody(env.signer.payload(t,
		env.signer.entry(t, "h2.example.com", fingerprint("f2"), expires),
		env.signer.entry(t, "fallback.example.com", fingerprint("fb-live"), expires),
	))
	_, result, err := env.store.Update(context.Background(), UpdateModeForced)
	require.NoError(t, err)
	require.Equal(t, UpdateOK, result)
	require.Equal(t, ValidationTrusted, env.store.ValidateFingerprint("h2.example.com", fingerprint("f2")))

	env.remote.setBody(env.signer.payload(t, env.signer.entry(t, "h1.example.com", fingerprint("f1"), expires)))
	_, result, err = env.store.Update(context.Background(), UpdateModeForced)
	require.NoError(t, err)
	require.Equal(t, UpdateOK, result)

	assert.Equal(t, ValidationTrusted, env.store.ValidateFingerprint("h1.example.com", fingerprint("f1")))
	assert.Equal(t, ValidationEmpty, env.store.ValidateFingerprint("h2.example.com", fingerprint("f2")))
	assert.Equal(t, ValidationTrusted, env.store.ValidateFingerprint("fallback.example.com", fingerprint("fb")))
	assert.Equal(t, ValidationUntrusted, env.store.ValidateFingerprint("fallback.example.com", fingerprint("fb-live")))
}

// seed stores one trusted pin so failure cases can show it survives.
func seed(t *testing.T, env *testEnv) []byte {
	t.Helper()
	env.remote.setBody(env.signer.payload(t,
		env.signer.entry(t, "seed.example.com", fingerprint("seed"), testNow.Add(30*24*time.Hour))))
	_, result, err := env.store.Update(context.Background(), UpdateModeForced)
	require.NoError(t, err)
	require.Equal(t, UpdateOK, result)

	raw, err := env.storage.Load(DefaultIdentifier)
	require.NoError(t, err)
	return raw
}

func assertSeedIntact(t *testing.T, env *testEnv, persisted []byte) {
	t.Helper()
	assert.Equal(t, ValidationTrusted, env.store.ValidateFingerprint("seed.example.com", fingerprint("seed")))
	raw, err := env.storage.Load(DefaultIdentifier)
	require.NoError(t, err)
	assert.Equal(t, persisted, raw)
}

func TestUpdate_FailuresLeaveDatabaseUntouched(t *testing.T) {
	future := testNow.Add(30 * 24 * time.Hour)

	tests := []struct {
		name   string
		setup  func(t *testing.T, env *testEnv)
		result UpdateResult
	}{
		{
			name: "empty list",
			setup: func(t *testing.T, env *testEnv) {
				env.remote.setBody([]byte(`{"fingerprints":[]}`))
			},
			result: UpdateStoreIsEmpty,
		},
		{
			name: "only expired entries",
			setup: func(t *testing.T, env *testEnv) {
				env.remote.setBody(env.signer.payload(t,
					env.signer.entry(t, "old.example.com", fingerprint("old"), testNow.Add(-time.Hour))))
			},
			result: UpdateStoreIsEmpty,
		},
		{
			name: "unparseable body",
			setup: func(t *testing.T, env *testEnv) {
				env.remote.setBody([]byte(`<html>maintenance</html>`))
			},
			result: UpdateInvalidData,
		},
		{
			name: "entry signed by another key",
			setup: func(t *testing.T, env *testEnv) {
				forger := newTestSigner(t)
				env.remote.setBody(env.signer.payload(t,
					env.signer.entry(t, "good.example.com", fingerprint("good"), future),
					forger.entry(t, "evil.example.com", fingerprint("evil"), future)))
			},
			result: UpdateInvalidSignature,
		},
		{
			name: "tampered fingerprint",
			setup: func(t *testing.T, env *testEnv) {
				e := env.signer.entry(t, "good.example.com", fingerprint("good"), future)
				e.Fingerprint = fingerprint("swapped")
				env.remote.setBody(env.signer.payload(t, e))
			},
			result: UpdateInvalidSignature,
		},
		{
			name: "unsigned entry",
			setup: func(t *testing.T, env *testEnv) {
				env.remote.setBody(env.signer.payload(t,
					Entry{CommonName: "good.example.com", Fingerprint: fingerprint("good"), Expires: future}))
			},
			result: UpdateInvalidSignature,
		},
		{
			name: "transport error",
			setup: func(t *testing.T, env *testEnv) {
				env.remote.mu.Lock()
				env.remote.err = errors.New("connection refused")
				env.remote.mu.Unlock()
			},
			result: UpdateNetworkError,
		},
		{
			name: "server error status",
			setup: func(t *testing.T, env *testEnv) {
				env.remote.mu.Lock()
				env.remote.status = 503
				env.remote.mu.Unlock()
			},
			result: UpdateNetworkError,
		},
		{
			name: "storage failure",
			setup: func(t *testing.T, env *testEnv) {
				env.remote.setBody(env.signer.payload(t,
					env.signer.entry(t, "new.example.com", fingerprint("new"), future)))
				env.storage.failSave.Store(true)
			},
			result: UpdateNetworkError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			persisted := seed(t, env)

			tc.setup(t, env)
			_, result, err := env.store.Update(context.Background(), UpdateModeForced)
			require.NoError(t, err)
			assert.Equal(t, tc.result, result)

			assertSeedIntact(t, env, persisted)
		})
	}
}

func TestUpdate_UnexpectedCommonNameIsStoredButNotTrusted(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.ExpectedCommonNames = []string{"api.example.com"}
	})
	future := testNow.Add(30 * 24 * time.Hour)
	env.remote.setBody(env.signer.payload(t,
		env.signer.entry(t, "api.example.com", fingerprint("api"), future),
		env.signer.entry(t, "other.example.com", fingerprint("other"), future)))

	_, result, err := env.store.Update(context.Background(), UpdateModeForced)
	require.NoError(t, err)
	require.Equal(t, UpdateOK, result)

	assert.Len(t, env.store.Database().Entries(), 2)
	assert.Equal(t, ValidationTrusted, env.store.ValidateFingerprint("api.example.com", fingerprint("api")))
	assert.Equal(t, ValidationUntrusted, env.store.ValidateFingerprint("other.example.com", fingerprint("other")))
}

func TestUpdate_DropsExpiredEntries(t *testing.T) {
	env := newTestEnv(t, nil)
	env.remote.setBody(env.signer.payload(t,
		env.signer.entry(t, "a.example.com", fingerprint("live"), testNow.Add(time.Hour)),
		env.signer.entry(t, "a.example.com", fingerprint("dead"), testNow.Add(-time.Hour))))

	_, result, err := env.store.Update(context.Background(), UpdateModeForced)
	require.NoError(t, err)
	require.Equal(t, UpdateOK, result)

	entries := env.store.Database().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, fingerprint("live"), entries[0].Fingerprint)
}

func TestUpdateType_Policy(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, UpdateTypeDirect, env.store.NextUpdateType(), "empty database needs a direct update")

	seed(t, env)
	assert.Equal(t, UpdateTypeNone, env.store.NextUpdateType())

	env.clock.Advance(DefaultPeriodicUpdateInterval)
	assert.Equal(t, UpdateTypeSilent, env.store.NextUpdateType())

	env.clock.Advance(31 * 24 * time.Hour)
	assert.Equal(t, UpdateTypeDirect, env.store.NextUpdateType(), "all pins expired")
}

func TestUpdate_FallbackOnlyStillNeedsDirectUpdate(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.FallbackEntries = []Entry{{CommonName: "a", Fingerprint: fingerprint("a"), Expires: testNow.Add(time.Hour)}}
	})
	assert.Equal(t, UpdateTypeDirect, env.store.NextUpdateType())
}

func TestUpdate_DefaultModeWhenFreshDoesNotFetch(t *testing.T) {
	env := newTestEnv(t, nil)
	seed(t, env)
	calls := env.remote.calls.Load()

	for i := 0; i < 3; i++ {
		updateType, result, err := env.store.Update(context.Background(), UpdateModeDefault)
		require.NoError(t, err)
		assert.Equal(t, UpdateTypeNone, updateType)
		assert.Equal(t, UpdateOK, result)
	}
	assert.Equal(t, calls, env.remote.calls.Load())
}

func TestUpdate_DefaultModeWhenStaleFetchesSilently(t *testing.T) {
	env := newTestEnv(t, nil)
	seed(t, env)
	env.clock.Advance(DefaultPeriodicUpdateInterval + time.Minute)
	calls := env.remote.calls.Load()

	updateType, result, err := env.store.Update(context.Background(), UpdateModeDefault)
	require.NoError(t, err)
	assert.Equal(t, UpdateTypeSilent, updateType)
	assert.Equal(t, UpdateOK, result)
	assert.Equal(t, calls+1, env.remote.calls.Load())
}

func TestUpdateAsync_ObserverOrder(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Dispatcher = NewSerialDispatcher()
	})
	env.remote.setBody(env.signer.payload(t,
		env.signer.entry(t, "github.com", fingerprint("gh"), testNow.Add(30*24*time.Hour))))

	obs := newRecordingObserver()
	env.store.UpdateAsync(UpdateModeDefault, obs)
	obs.wait(t)

	assert.Equal(t, []string{"started:direct", "finished:direct:ok"}, obs.snapshot())
}

func TestUpdateAsync_NoUpdateNeeded(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Dispatcher = NewSerialDispatcher()
	})
	seed(t, env)

	obs := newRecordingObserver()
	env.store.UpdateAsync(UpdateModeDefault, obs)
	obs.wait(t)

	assert.Equal(t, []string{"started:none", "finished:none:ok"}, obs.snapshot())
}

func TestUpdateAsync_NilObserver(t *testing.T) {
	env := newTestEnv(t, nil)
	env.remote.setBody(env.signer.payload(t,
		env.signer.entry(t, "github.com", fingerprint("gh"), testNow.Add(time.Hour))))

	env.store.UpdateAsync(UpdateModeForced, nil)
	require.Eventually(t, func() bool {
		return env.remote.calls.Load() == 1 && env.store.pendingWaiters() == 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestUpdate_SingleFlight(t *testing.T) {
	const callers = 10

	env := newTestEnv(t, nil)
	env.remote.setBody(env.signer.payload(t,
		env.signer.entry(t, "github.com", fingerprint("gh"), testNow.Add(30*24*time.Hour))))
	env.remote.gate = make(chan struct{})

	observers := make([]*recordingObserver, callers)
	for i := range observers {
		observers[i] = newRecordingObserver()
	}

	var wg sync.WaitGroup
	for _, obs := range observers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.store.UpdateAsync(UpdateModeForced, obs)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return env.store.pendingWaiters() == callers
	}, 5*time.Second, 5*time.Millisecond)
	close(env.remote.gate)

	for _, obs := range observers {
		obs.wait(t)
		assert.Equal(t, []UpdateResult{UpdateOK}, obs.finished)
	}
	assert.Equal(t, int32(1), env.remote.calls.Load())
	assert.Equal(t, 0, env.store.pendingWaiters())
}

func TestUpdate_SingleFlightBlockingCallers(t *testing.T) {
	const callers = 8

	env := newTestEnv(t, nil)
	env.remote.setBody([]byte(`{"fingerprints":[]}`))
	env.remote.gate = make(chan struct{})

	results := make(chan UpdateResult, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, result, _ := env.store.Update(context.Background(), UpdateModeForced)
			results <- result
		}()
	}

	require.Eventually(t, func() bool {
		return env.store.pendingWaiters() == callers
	}, 5*time.Second, 5*time.Millisecond)
	close(env.remote.gate)

	for i := 0; i < callers; i++ {
		assert.Equal(t, UpdateStoreIsEmpty, <-results)
	}
	assert.Equal(t, int32(1), env.remote.calls.Load())
}

func TestUpdate_NewFlightAfterCompletion(t *testing.T) {
	env := newTestEnv(t, nil)
	seed(t, env)
	seed(t, env)
	assert.Equal(t, int32(2), env.remote.calls.Load())
}

func TestUpdate_ContextDoneDoesNotCancelFetch(t *testing.T) {
	env := newTestEnv(t, nil)
	env.remote.setBody(env.signer.payload(t,
		env.signer.entry(t, "github.com", fingerprint("gh"), testNow.Add(time.Hour))))
	env.remote.gate = make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, result, err := env.store.Update(ctx, UpdateModeForced)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, UpdateNetworkError, result)

	close(env.remote.gate)
	require.Eventually(t, func() bool {
		return env.store.pendingWaiters() == 0 &&
			env.store.ValidateFingerprint("github.com", fingerprint("gh")) == ValidationTrusted
	}, 5*time.Second, 5*time.Millisecond)
}

func TestUpdate_ChallengeMode(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.UseChallenge = true
	})
	// Entries are unsigned; the response signature covers the whole body.
	body := env.signer.payload(t, Entry{
		CommonName: "github.com", Fingerprint: fingerprint("gh"), Expires: testNow.Add(time.Hour),
	})
	env.remote.respond = func(req *RemoteDataRequest) *RemoteDataResponse {
		challenge := req.Headers[ChallengeHeader]
		return &RemoteDataResponse{
			StatusCode: 200,
			Headers:    map[string]string{"x-cert-pinning-signature": env.signer.challengeSignature(t, challenge, body)},
			Body:       body,
		}
	}

	_, result, err := env.store.Update(context.Background(), UpdateModeForced)
	require.NoError(t, err)
	assert.Equal(t, UpdateOK, result)
	assert.Len(t, env.remote.lastRequest().Headers[ChallengeHeader], 24, "16 random bytes, base64")
	assert.Equal(t, ValidationTrusted, env.store.ValidateFingerprint("github.com", fingerprint("gh")))
}

func TestUpdate_ChallengeModeRejectsBadSignatures(t *testing.T) {
	body := []byte(`{"fingerprints":[]}`)

	tests := map[string]func(env *testEnv, challenge string) map[string]string{
		"missing header": func(*testEnv, string) map[string]string { return nil },
		"not base64": func(*testEnv, string) map[string]string {
			return map[string]string{"x-cert-pinning-signature": "***"}
		},
		"stale challenge": func(env *testEnv, _ string) map[string]string {
			return map[string]string{"x-cert-pinning-signature": env.signer.challengeSignature(t, "replayed", body)}
		},
	}

	for name, headers := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, func(cfg *Config) { cfg.UseChallenge = true })
			env.remote.respond = func(req *RemoteDataRequest) *RemoteDataResponse {
				return &RemoteDataResponse{StatusCode: 200, Headers: headers(env, req.Headers[ChallengeHeader]), Body: body}
			}

			_, result, err := env.store.Update(context.Background(), UpdateModeForced)
			require.NoError(t, err)
			assert.Equal(t, UpdateInvalidSignature, result)
		})
	}
}

func TestUpdate_NoChallengeHeaderByDefault(t *testing.T) {
	env := newTestEnv(t, nil)
	seed(t, env)
	_, ok := env.remote.lastRequest().Headers[ChallengeHeader]
	assert.False(t, ok)
}

func TestHeaderValue_CaseInsensitive(t *testing.T) {
	assert.Equal(t, "a", headerValue(map[string]string{"x-cert-pinning-signature": "a"}, SignatureHeader))
	assert.Equal(t, "b", headerValue(map[string]string{"X-Cert-Pinning-Signature": "b"}, SignatureHeader))
	assert.Empty(t, headerValue(nil, SignatureHeader))
}
