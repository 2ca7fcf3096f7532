package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errTestError    = errors.New("test error")
	errNonRetryable = errors.New("non-retryable error")
)

func testConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), testConfig(), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestRetry_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), testConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errTestError
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestRetry_MaxAttemptsExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 2

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errTestError
	})

	if err == nil {
		t.Error("Expected error after max attempts, got nil")
	}
	if attempts != 3 { // MaxAttempts + 1 (initial attempt)
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestRetry_Disabled(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), Config{Enabled: false}, func() error {
		attempts++
		return errTestError
	})

	if err == nil {
		t.Error("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt (no retry), got: %d", attempts)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 5
	cfg.InitialDelay = 50 * time.Millisecond
	cfg.MaxDelay = 500 * time.Millisecond

	attempts := 0
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func() error {
		attempts++
		return errTestError
	})

	if err == nil {
		t.Error("Expected error due to context cancellation, got nil")
	}
	if attempts < 1 {
		t.Errorf("Expected at least 1 attempt before cancellation, got: %d", attempts)
	}
}

func TestRetry_NonRetryableError(t *testing.T) {
	cfg := testConfig()
	cfg.NonRetryableErrors = []error{errNonRetryable}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errNonRetryable
	})

	if err == nil {
		t.Error("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt (non-retryable), got: %d", attempts)
	}
}

func TestRetryWithResult_Success(t *testing.T) {
	attempts := 0
	result, err := RetryWithResult(context.Background(), testConfig(), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errTestError
		}
		return "success", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if result != "success" {
		t.Errorf("Expected 'success', got: %s", result)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got: %d", attempts)
	}
}

func TestRetryWithResult_Failure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 2

	attempts := 0
	result, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		attempts++
		return 42, errTestError
	})

	if err == nil {
		t.Error("Expected error, got nil")
	}
	if result != 0 {
		t.Errorf("Expected zero value, got: %d", result)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestCalculateDelay_ExponentialBackoff(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}

	if delay := calculateDelay(cfg, 0); delay != 100*time.Millisecond {
		t.Errorf("Expected 100ms, got: %v", delay)
	}
	if delay := calculateDelay(cfg, 1); delay != 200*time.Millisecond {
		t.Errorf("Expected 200ms, got: %v", delay)
	}
	if delay := calculateDelay(cfg, 2); delay != 400*time.Millisecond {
		t.Errorf("Expected 400ms, got: %v", delay)
	}
}

func TestCalculateDelay_MaxDelayCap(t *testing.T) {
	cfg := Config{
		InitialDelay: 1 * time.Second,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}

	// Would be 32 seconds without the cap
	if delay := calculateDelay(cfg, 5); delay > cfg.MaxDelay {
		t.Errorf("Expected delay <= %v, got: %v", cfg.MaxDelay, delay)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Enabled {
		t.Error("Expected Enabled to be true")
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("Expected MaxAttempts to be 3, got: %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay != 100*time.Millisecond {
		t.Errorf("Expected InitialDelay to be 100ms, got: %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 5*time.Second {
		t.Errorf("Expected MaxDelay to be 5s, got: %v", cfg.MaxDelay)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("Expected Multiplier to be 2.0, got: %f", cfg.Multiplier)
	}
}
