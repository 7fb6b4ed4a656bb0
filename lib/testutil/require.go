// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"time"
)

// Fataler is the part of testing.TB the channel helpers use.
type Fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the first value sent on ch, failing the test
// when ch closes empty or nothing arrives within timeout. what names
// the awaited result in the failure message.
//
//	result := testutil.RequireReceive(t, storage.OpenAsync(ctx, options), 10*time.Second, "OpenAsync")
func RequireReceive[T any](t Fataler, ch <-chan T, timeout time.Duration, what string) T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed before a value arrived", what)
		}
		return value
	case <-timer.C:
		t.Fatalf("%s: nothing received within %v", what, timeout)
	}
	panic("unreachable")
}

// RequireDrained discards whatever is left on a one-shot result channel
// and fails the test unless the sender closes it within timeout.
// It returns the number of extra values seen.
func RequireDrained[T any](t Fataler, ch <-chan T, timeout time.Duration, what string) int {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	extra := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return extra
			}
			extra++
		case <-timer.C:
			t.Fatalf("%s: channel still open after %v", what, timeout)
			return extra
		}
	}
}
