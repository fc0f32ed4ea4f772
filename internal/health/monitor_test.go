package health_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/session-cache/internal/health"
	"github.com/angeloszaimis/session-cache/pkg/logger"
)

func TestHealth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Health Suite")
}

const endpoint = "redis://localhost:6379/0"

var errDown = errors.New("connection refused")

// fakeProbe counts calls and fails while failing is set.
type fakeProbe struct {
	calls   atomic.Int64
	failing atomic.Bool
}

func (f *fakeProbe) probe(context.Context, string) error {
	f.calls.Add(1)
	if f.failing.Load() {
		return errDown
	}
	return nil
}

var _ = Describe("Monitor", func() {
	var (
		probe   *fakeProbe
		monitor *health.Monitor
		ctx     context.Context
	)

	newMonitor := func(reset, interval time.Duration) *health.Monitor {
		return health.NewMonitor(probe.probe, health.Options{
			FailureThreshold: 3,
			ResetTimeout:     reset,
			CheckInterval:    interval,
		}, logger.NewNop())
	}

	BeforeEach(func() {
		probe = &fakeProbe{}
		ctx = context.Background()
		monitor = newMonitor(100*time.Millisecond, 20*time.Millisecond)
	})

	Describe("IsHealthy", func() {
		It("should probe a fresh endpoint and report healthy", func() {
			Expect(monitor.IsHealthy(ctx, endpoint)).To(BeTrue())
			Expect(probe.calls.Load()).To(Equal(int64(1)))
		})

		It("should debounce probes within the check interval", func() {
			monitor = newMonitor(100*time.Millisecond, time.Minute)

			Expect(monitor.IsHealthy(ctx, endpoint)).To(BeTrue())
			Expect(monitor.IsHealthy(ctx, endpoint)).To(BeTrue())
			Expect(monitor.IsHealthy(ctx, endpoint)).To(BeTrue())
			Expect(probe.calls.Load()).To(Equal(int64(1)))
		})

		It("should probe again once the interval elapsed", func() {
			Expect(monitor.IsHealthy(ctx, endpoint)).To(BeTrue())
			time.Sleep(30 * time.Millisecond)
			Expect(monitor.IsHealthy(ctx, endpoint)).To(BeTrue())
			Expect(probe.calls.Load()).To(Equal(int64(2)))
		})

		It("should report unhealthy when the probe fails", func() {
			probe.failing.Store(true)
			Expect(monitor.IsHealthy(ctx, endpoint)).To(BeFalse())
		})
	})

	Describe("Circuit tripping", func() {
		It("should open after the failure threshold of traffic failures", func() {
			monitor.RecordResult(endpoint, errDown, time.Millisecond)
			monitor.RecordResult(endpoint, errDown, time.Millisecond)
			Expect(monitor.IsCircuitOpen(endpoint)).To(BeFalse())

			monitor.RecordResult(endpoint, errDown, time.Millisecond)
			Expect(monitor.IsCircuitOpen(endpoint)).To(BeTrue())
		})

		It("should reset the failure streak on success", func() {
			monitor.RecordResult(endpoint, errDown, time.Millisecond)
			monitor.RecordResult(endpoint, errDown, time.Millisecond)
			monitor.RecordResult(endpoint, nil, time.Millisecond)
			monitor.RecordResult(endpoint, errDown, time.Millisecond)
			Expect(monitor.IsCircuitOpen(endpoint)).To(BeFalse())
		})

		It("should fast-fail without probing while the cooldown runs", func() {
			probe.failing.Store(true)
			for i := 0; i < 3; i++ {
				monitor.RecordResult(endpoint, errDown, time.Millisecond)
			}
			Expect(monitor.IsCircuitOpen(endpoint)).To(BeTrue())

			before := probe.calls.Load()
			Expect(monitor.IsHealthy(ctx, endpoint)).To(BeFalse())
			Expect(monitor.IsHealthy(ctx, endpoint)).To(BeFalse())
			Expect(probe.calls.Load()).To(Equal(before))
		})
	})

	Describe("Circuit recovery", func() {
		BeforeEach(func() {
			for i := 0; i < 3; i++ {
				monitor.RecordResult(endpoint, errDown, time.Millisecond)
			}
			Expect(monitor.IsCircuitOpen(endpoint)).To(BeTrue())
		})

		It("should close once the cooldown elapsed and a probe succeeds", func() {
			time.Sleep(150 * time.Millisecond)

			Expect(monitor.IsHealthy(ctx, endpoint)).To(BeTrue())
			Expect(monitor.IsCircuitOpen(endpoint)).To(BeFalse())
		})

		It("should re-arm the cooldown when the probe fails", func() {
			probe.failing.Store(true)
			time.Sleep(150 * time.Millisecond)

			Expect(monitor.IsHealthy(ctx, endpoint)).To(BeFalse())
			Expect(monitor.IsCircuitOpen(endpoint)).To(BeTrue())

			// Fresh cooldown: still fast-failing, no probe.
			before := probe.calls.Load()
			Expect(monitor.IsHealthy(ctx, endpoint)).To(BeFalse())
			Expect(probe.calls.Load()).To(Equal(before))
		})
	})

	Describe("Snapshot", func() {
		It("should expose counters and response times", func() {
			monitor.RecordResult(endpoint, nil, 5*time.Millisecond)
			monitor.RecordResult(endpoint, nil, 15*time.Millisecond)
			monitor.RecordResult(endpoint, errDown, 10*time.Millisecond)

			snap := monitor.Snapshot()
			Expect(snap).To(HaveKey(endpoint))

			eh := snap[endpoint]
			Expect(eh.Healthy).To(BeFalse())
			Expect(eh.ConsecutiveFailures).To(Equal(1))
			Expect(eh.LastError).To(ContainSubstring("connection refused"))
			Expect(eh.LastResponseTime).To(Equal(10 * time.Millisecond))
			Expect(eh.AvgResponseTime).To(Equal(10 * time.Millisecond))
		})
	})

	Describe("Reset", func() {
		It("should forget tripped breakers", func() {
			for i := 0; i < 3; i++ {
				monitor.RecordResult(endpoint, errDown, time.Millisecond)
			}
			Expect(monitor.IsCircuitOpen(endpoint)).To(BeTrue())

			monitor.Reset()
			Expect(monitor.IsCircuitOpen(endpoint)).To(BeFalse())
		})
	})
})
