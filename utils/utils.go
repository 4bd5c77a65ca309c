package utils

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

func Map[T, V any](ts []T, fn func(T) V) []V {
	result := make([]V, len(ts))
	for i, t := range ts {
		result[i] = fn(t)
	}
	return result
}

func Find[T any](ss []T, test func(T, int) bool) (res T, found bool) {
	for i, s := range ss {
		if test(s, i) {
			return s, true
		}
	}
	return
}

func Contains[T comparable](s []T, e T) bool {
	for _, a := range s {
		if a == e {
			return true
		}
	}
	return false
}

// LastSegment returns the final path segment of a queue URL, e.g.
// https://sqs.af-south-1.amazonaws.com/123456789012/orders -> orders.
func LastSegment(url string) string {
	url = strings.TrimRight(url, "/")
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}

// Retry calls f up to retries times, sleeping delay between failed attempts.
func Retry[T any](ctx context.Context, retries int, delay time.Duration, f func(retryCount int) (T, error)) (T, error) {
	return RetryIf(ctx, retries, delay, func(error) bool { return true }, f)
}

// RetryIf is Retry that gives up early on errors retryable rejects.
func RetryIf[T any](ctx context.Context, retries int, delay time.Duration, retryable func(error) bool, f func(retryCount int) (T, error)) (T, error) {
	var err error
	var result T
	for i := 0; i < retries; i++ {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result, err = f(i)
		if err == nil || !retryable(err) {
			return result, err
		}
		if i < retries-1 {
			Sleep(ctx, delay)
		}
	}
	return result, err
}

// TryCatch runs f and recovers from a panic.
// It will pass the recovered value as an error to the catch function on panic
func TryCatch(f func(), catch func(e error, stackTrace string)) {
	defer func() {
		if err := recover(); err != nil {
			if e, ok := err.(error); ok {
				catch(e, string(debug.Stack()))
			} else {
				catch(fmt.Errorf("%v", err), string(debug.Stack()))
			}
		}
	}()

	f()
}

func StringOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func IntOrDefault(value, defaultValue int) int {
	if value == 0 {
		return defaultValue
	}
	return value
}

func Ptr[T any](v T) *T {
	return &v
}

// ValueOrDefault dereferences p, falling back to defaultValue when p is nil.
func ValueOrDefault[T any](p *T, defaultValue T) T {
	if p == nil {
		return defaultValue
	}
	return *p
}

// Sleep blocks for delay or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
