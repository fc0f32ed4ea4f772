package sweeper_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/session-cache/internal/sweeper"
	"github.com/angeloszaimis/session-cache/pkg/logger"
)

func TestSweeper(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Sweeper Suite")
}

var _ = Describe("Sweeper", func() {
	var (
		sw     *sweeper.Sweeper
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		sw = sweeper.New(logger.NewNop())
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
	})

	It("should run a job repeatedly at its interval", func() {
		var runs atomic.Int64
		sw.Register(sweeper.Job{
			Name:     "count",
			Interval: 10 * time.Millisecond,
			Run: func(context.Context) (int, error) {
				runs.Add(1)
				return 0, nil
			},
		})

		sw.Start(ctx)

		Eventually(runs.Load).Should(BeNumerically(">=", 3))
	})

	It("should keep other jobs running when one fails", func() {
		var good atomic.Int64
		sw.Register(sweeper.Job{
			Name:     "bad",
			Interval: 10 * time.Millisecond,
			Run: func(context.Context) (int, error) {
				return 0, context.DeadlineExceeded
			},
		})
		sw.Register(sweeper.Job{
			Name:     "good",
			Interval: 10 * time.Millisecond,
			Run: func(context.Context) (int, error) {
				good.Add(1)
				return 1, nil
			},
		})

		sw.Start(ctx)

		Eventually(good.Load).Should(BeNumerically(">=", 2))
	})

	It("should stop when the context is cancelled", func() {
		var runs atomic.Int64
		sw.Register(sweeper.Job{
			Name:     "count",
			Interval: 5 * time.Millisecond,
			Run: func(context.Context) (int, error) {
				runs.Add(1)
				return 0, nil
			},
		})

		sw.Start(ctx)
		Eventually(runs.Load).Should(BeNumerically(">=", 1))

		cancel()
		stopped := runs.Load()
		Consistently(runs.Load, 50*time.Millisecond).Should(BeNumerically("<=", stopped+1))
	})
})
