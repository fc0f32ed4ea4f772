package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/session-cache/internal/health"
	"github.com/angeloszaimis/session-cache/internal/retry"
	"github.com/angeloszaimis/session-cache/pkg/logger"
)

func TestRetry(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Retry Suite")
}

const endpoint = "redis://localhost:6379/0"

var errDown = errors.New("i/o timeout")

var _ = Describe("Executor", func() {
	var (
		ctx        context.Context
		monitor    *health.Monitor
		executor   *retry.Executor
		probeCalls int
		probeErr   error
	)

	BeforeEach(func() {
		ctx = context.Background()
		probeCalls = 0
		probeErr = nil

		monitor = health.NewMonitor(
			func(context.Context, string) error {
				probeCalls++
				return probeErr
			},
			health.Options{
				FailureThreshold: 3,
				ResetTimeout:     time.Minute,
				CheckInterval:    time.Minute,
			},
			logger.NewNop(),
		)

		executor = retry.NewExecutor(monitor, retry.Options{
			MaxRetries: 2,
			BaseDelay:  time.Millisecond,
			MaxDelay:   5 * time.Millisecond,
		}, logger.NewNop())
	})

	Describe("Do", func() {
		It("should return the operation result on first success", func() {
			attempts := 0
			result, ok := retry.Do(ctx, executor, endpoint, func(context.Context) (string, error) {
				attempts++
				return "value", nil
			}, "fallback")

			Expect(ok).To(BeTrue())
			Expect(result).To(Equal("value"))
			Expect(attempts).To(Equal(1))
		})

		It("should retry transient failures and eventually succeed", func() {
			attempts := 0
			result, ok := retry.Do(ctx, executor, endpoint, func(context.Context) (string, error) {
				attempts++
				if attempts < 3 {
					return "", errDown
				}
				return "value", nil
			}, "fallback")

			Expect(ok).To(BeTrue())
			Expect(result).To(Equal("value"))
			Expect(attempts).To(Equal(3))
		})

		It("should return the fallback after exhausting attempts", func() {
			attempts := 0
			result, ok := retry.Do(ctx, executor, endpoint, func(context.Context) (string, error) {
				attempts++
				return "", errDown
			}, "fallback")

			Expect(ok).To(BeFalse())
			Expect(result).To(Equal("fallback"))
			Expect(attempts).To(Equal(3))
		})

		It("should trip the circuit once failures reach the threshold", func() {
			retry.Do(ctx, executor, endpoint, func(context.Context) (string, error) {
				return "", errDown
			}, "fallback")

			// 3 attempts = 3 consecutive failures = threshold.
			Expect(monitor.IsCircuitOpen(endpoint)).To(BeTrue())
		})

		It("should skip the operation entirely while the circuit is open", func() {
			retry.Do(ctx, executor, endpoint, func(context.Context) (string, error) {
				return "", errDown
			}, "fallback")
			Expect(monitor.IsCircuitOpen(endpoint)).To(BeTrue())

			attempts := 0
			result, ok := retry.Do(ctx, executor, endpoint, func(context.Context) (string, error) {
				attempts++
				return "value", nil
			}, "fallback")

			Expect(ok).To(BeFalse())
			Expect(result).To(Equal("fallback"))
			Expect(attempts).To(Equal(0))
		})

		It("should skip the operation when the health probe fails", func() {
			probeErr = errDown

			attempts := 0
			_, ok := retry.Do(ctx, executor, endpoint, func(context.Context) (string, error) {
				attempts++
				return "value", nil
			}, "fallback")

			Expect(ok).To(BeFalse())
			Expect(attempts).To(Equal(0))
			Expect(probeCalls).To(Equal(1))
		})

		It("should stop retrying when the context is cancelled", func() {
			cancelCtx, cancel := context.WithCancel(ctx)

			attempts := 0
			result, ok := retry.Do(cancelCtx, executor, endpoint, func(context.Context) (string, error) {
				attempts++
				cancel()
				return "", errDown
			}, "fallback")

			Expect(ok).To(BeFalse())
			Expect(result).To(Equal("fallback"))
			Expect(attempts).To(Equal(1))
		})
	})
})
