package circuitbreaker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/api-gateway/internal/circuitbreaker"
)

type reply struct {
	status int
	body   string
}

type fakeClock struct {
	mutex sync.Mutex
	now   time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}

var errNetwork = errors.New("connection refused")

func succeed(calls *int32) func(context.Context) (reply, error) {
	return func(context.Context) (reply, error) {
		atomic.AddInt32(calls, 1)
		return reply{status: 200, body: "ok"}, nil
	}
}

func fail(calls *int32) func(context.Context) (reply, error) {
	return func(context.Context) (reply, error) {
		atomic.AddInt32(calls, 1)
		return reply{}, errNetwork
	}
}

func respond(calls *int32, status int) func(context.Context) (reply, error) {
	return func(context.Context) (reply, error) {
		atomic.AddInt32(calls, 1)
		return reply{status: status}, nil
	}
}

var _ = Describe("Breaker", func() {
	var (
		clock    *fakeClock
		settings circuitbreaker.Settings[reply]
		cb       *circuitbreaker.Breaker[reply]
		calls    int32
		ctx      context.Context
	)

	BeforeEach(func() {
		clock = newFakeClock()
		calls = 0
		ctx = context.Background()
		settings = circuitbreaker.Settings[reply]{
			Name:            "users",
			ErrorThreshold:  50,
			VolumeThreshold: 4,
			Window:          4,
			ResetTimeout:    3 * time.Second,
			Fallback: func(error) reply {
				return reply{status: 503, body: "users service temporarily unavailable"}
			},
			IsFailure: func(r reply, err error) bool {
				return err != nil || r.status >= 500
			},
			Clock: clock.Now,
		}
	})

	JustBeforeEach(func() {
		cb = circuitbreaker.New(settings)
	})

	Describe("New", func() {
		It("should create a circuit breaker in closed state", func() {
			Expect(cb).NotTo(BeNil())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Name()).To(Equal("users"))
		})

		It("should apply defaults for zero settings", func() {
			cb = circuitbreaker.New(circuitbreaker.Settings[reply]{})
			Expect(cb.Stats().WindowSize).To(Equal(10))
		})
	})

	Context("when in CLOSED state", func() {
		It("should forward every call while the failure ratio stays below threshold", func() {
			for i := 0; i < 20; i++ {
				fn := succeed(&calls)
				if i%4 == 0 {
					fn = fail(&calls)
				}
				_, _ = cb.Execute(ctx, fn)
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			}
			Expect(calls).To(Equal(int32(20)))
		})

		It("should not trip before the volume threshold is reached", func() {
			for i := 0; i < 3; i++ {
				_, err := cb.Execute(ctx, fail(&calls))
				Expect(err).To(MatchError(errNetwork))
			}
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should return the fallback together with the cause on failure", func() {
			r, err := cb.Execute(ctx, fail(&calls))
			Expect(err).To(MatchError(errNetwork))
			Expect(r.status).To(Equal(503))
		})

		It("should trip after enough failures and serve the next call from fallback", func() {
			for i := 0; i < 4; i++ {
				_, _ = cb.Execute(ctx, fail(&calls))
			}
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))

			r, err := cb.Execute(ctx, succeed(&calls))
			Expect(err).To(MatchError(circuitbreaker.ErrOpenState))
			Expect(r.status).To(Equal(503))
			Expect(calls).To(Equal(int32(4)))
		})

		It("should only consider the most recent outcomes", func() {
			_, _ = cb.Execute(ctx, fail(&calls))
			for i := 0; i < 8; i++ {
				_, _ = cb.Execute(ctx, succeed(&calls))
			}

			stats := cb.Stats()
			Expect(stats.State).To(Equal(circuitbreaker.StateClosed))
			Expect(stats.WindowTotal).To(Equal(4))
			Expect(stats.WindowFailures).To(Equal(0))
			Expect(stats.Failures).To(Equal(uint64(1)))
			Expect(stats.Successes).To(Equal(uint64(8)))
		})
	})

	Describe("Failure classification", func() {
		It("should pass 4xx responses through without counting them as failures", func() {
			for i := 0; i < 10; i++ {
				r, err := cb.Execute(ctx, respond(&calls, 404))
				Expect(err).NotTo(HaveOccurred())
				Expect(r.status).To(Equal(404))
			}
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Stats().WindowFailures).To(Equal(0))
		})

		It("should return 5xx responses as-is while counting them as failures", func() {
			for i := 0; i < 4; i++ {
				r, err := cb.Execute(ctx, respond(&calls, 500))
				Expect(err).NotTo(HaveOccurred())
				Expect(r.status).To(Equal(500))
			}
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should count a recovered panic as a failure", func() {
			r, err := cb.Execute(ctx, func(context.Context) (reply, error) {
				panic("boom")
			})
			Expect(err).To(MatchError(circuitbreaker.ErrPanic))
			Expect(r.status).To(Equal(503))
			Expect(cb.Stats().WindowFailures).To(Equal(1))
		})
	})

	Describe("Timeouts", func() {
		BeforeEach(func() {
			settings.Timeout = 20 * time.Millisecond
			settings.Clock = nil
		})

		It("should give up on slow calls and count them as failures", func() {
			release := make(chan struct{})
			defer close(release)

			start := time.Now()
			r, err := cb.Execute(ctx, func(context.Context) (reply, error) {
				<-release
				return reply{status: 200}, nil
			})

			Expect(time.Since(start)).To(BeNumerically("<", time.Second))
			Expect(err).To(MatchError(circuitbreaker.ErrTimeout))
			Expect(r.status).To(Equal(503))

			stats := cb.Stats()
			Expect(stats.Timeouts).To(Equal(uint64(1)))
			Expect(stats.WindowFailures).To(Equal(1))
		})

		It("should discard a late completion", func() {
			finished := make(chan struct{})
			_, err := cb.Execute(ctx, func(context.Context) (reply, error) {
				defer close(finished)
				time.Sleep(50 * time.Millisecond)
				return reply{status: 200}, nil
			})
			Expect(err).To(MatchError(circuitbreaker.ErrTimeout))

			Eventually(finished).Should(BeClosed())
			stats := cb.Stats()
			Expect(stats.Successes).To(Equal(uint64(0)))
			Expect(stats.WindowTotal).To(Equal(1))
		})

		It("should not blame the dependency when the caller cancels", func() {
			callerCtx, cancel := context.WithCancel(ctx)
			go func() {
				time.Sleep(5 * time.Millisecond)
				cancel()
			}()

			_, err := cb.Execute(callerCtx, func(c context.Context) (reply, error) {
				<-c.Done()
				return reply{}, c.Err()
			})
			Expect(err).To(MatchError(context.Canceled))
			Expect(cb.Stats().WindowTotal).To(Equal(0))
		})
	})

	Context("when in OPEN state", func() {
		JustBeforeEach(func() {
			for i := 0; i < 4; i++ {
				_, _ = cb.Execute(ctx, fail(&calls))
			}
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			calls = 0
		})

		It("should reject calls without contacting the dependency", func() {
			for i := 0; i < 5; i++ {
				_, err := cb.Execute(ctx, succeed(&calls))
				Expect(err).To(MatchError(circuitbreaker.ErrOpenState))
			}
			Expect(calls).To(Equal(int32(0)))
			Expect(cb.Stats().Rejects).To(Equal(uint64(5)))
		})

		It("should remain OPEN before reset timeout expires", func() {
			clock.Advance(2 * time.Second)
			_, err := cb.Execute(ctx, succeed(&calls))
			Expect(err).To(MatchError(circuitbreaker.ErrOpenState))
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should report HALF-OPEN once the reset timeout elapsed", func() {
			clock.Advance(3 * time.Second)
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
		})

		It("should evaluate the fallback on every rejected call", func() {
			var produced int32
			settings.Fallback = func(cause error) reply {
				atomic.AddInt32(&produced, 1)
				return reply{status: 503, body: cause.Error()}
			}
			cb = circuitbreaker.New(settings)
			for i := 0; i < 4; i++ {
				_, _ = cb.Execute(ctx, fail(&calls))
			}
			produced = 0

			r, _ := cb.Execute(ctx, succeed(&calls))
			_, _ = cb.Execute(ctx, succeed(&calls))

			Expect(produced).To(Equal(int32(2)))
			Expect(r.body).To(Equal(circuitbreaker.ErrOpenState.Error()))
		})
	})

	Context("when in HALF-OPEN state", func() {
		JustBeforeEach(func() {
			for i := 0; i < 4; i++ {
				_, _ = cb.Execute(ctx, fail(&calls))
			}
			clock.Advance(3 * time.Second)
			calls = 0
		})

		It("should close after a successful probe", func() {
			r, err := cb.Execute(ctx, succeed(&calls))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.status).To(Equal(200))
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))

			_, err = cb.Execute(ctx, succeed(&calls))
			Expect(err).NotTo(HaveOccurred())
			Expect(calls).To(Equal(int32(2)))
		})

		It("should re-open after a failed probe and restart the timer", func() {
			_, err := cb.Execute(ctx, fail(&calls))
			Expect(err).To(MatchError(errNetwork))
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))

			clock.Advance(2 * time.Second)
			_, err = cb.Execute(ctx, succeed(&calls))
			Expect(err).To(MatchError(circuitbreaker.ErrOpenState))

			clock.Advance(time.Second)
			_, err = cb.Execute(ctx, succeed(&calls))
			Expect(err).NotTo(HaveOccurred())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should treat a 5xx probe as a failure", func() {
			_, err := cb.Execute(ctx, respond(&calls, 502))
			Expect(err).NotTo(HaveOccurred())
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should let exactly one probe through under concurrency", func() {
			release := make(chan struct{})
			probeStarted := make(chan struct{})

			go func() {
				defer GinkgoRecover()
				_, err := cb.Execute(ctx, func(context.Context) (reply, error) {
					atomic.AddInt32(&calls, 1)
					close(probeStarted)
					<-release
					return reply{status: 200}, nil
				})
				Expect(err).NotTo(HaveOccurred())
			}()
			Eventually(probeStarted).Should(BeClosed())

			var wg sync.WaitGroup
			var rejected int32
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := cb.Execute(ctx, succeed(&calls))
					if errors.Is(err, circuitbreaker.ErrTooManyRequests) {
						atomic.AddInt32(&rejected, 1)
					}
				}()
			}
			wg.Wait()

			Expect(rejected).To(Equal(int32(20)))
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))

			close(release)
			Eventually(cb.State).Should(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("OnStateChange", func() {
		var changes []string

		BeforeEach(func() {
			changes = nil
			settings.OnStateChange = func(name string, from, to circuitbreaker.State) {
				changes = append(changes, name+":"+from.String()+"->"+to.String())
			}
		})

		It("should report every transition in order", func() {
			for i := 0; i < 4; i++ {
				_, _ = cb.Execute(ctx, fail(&calls))
			}
			clock.Advance(3 * time.Second)
			_, _ = cb.Execute(ctx, succeed(&calls))

			Expect(changes).To(Equal([]string{
				"users:CLOSED->OPEN",
				"users:OPEN->HALF-OPEN",
				"users:HALF-OPEN->CLOSED",
			}))
		})

		It("should not transition when only reading state", func() {
			for i := 0; i < 4; i++ {
				_, _ = cb.Execute(ctx, fail(&calls))
			}
			clock.Advance(3 * time.Second)
			_ = cb.State()
			_ = cb.Stats()

			Expect(changes).To(Equal([]string{"users:CLOSED->OPEN"}))
		})
	})

	Describe("Two failures then two successes with a 50% threshold", func() {
		It("should open, serve fallback, probe after the reset and then forward", func() {
			_, err := cb.Execute(ctx, fail(&calls))
			Expect(err).To(HaveOccurred())
			_, err = cb.Execute(ctx, fail(&calls))
			Expect(err).To(HaveOccurred())
			_, err = cb.Execute(ctx, succeed(&calls))
			Expect(err).NotTo(HaveOccurred())
			_, err = cb.Execute(ctx, succeed(&calls))
			Expect(err).NotTo(HaveOccurred())
			Expect(calls).To(Equal(int32(4)))

			// 5th call
			r, err := cb.Execute(ctx, succeed(&calls))
			Expect(err).To(MatchError(circuitbreaker.ErrOpenState))
			Expect(r.status).To(Equal(503))
			Expect(calls).To(Equal(int32(4)))

			clock.Advance(3000 * time.Millisecond)

			// 6th call is the probe
			r, err = cb.Execute(ctx, succeed(&calls))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.status).To(Equal(200))
			Expect(calls).To(Equal(int32(5)))

			// 7th call is forwarded normally
			_, err = cb.Execute(ctx, succeed(&calls))
			Expect(err).NotTo(HaveOccurred())
			Expect(calls).To(Equal(int32(6)))
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Context("with a window of 6 and a 50% threshold", func() {
		BeforeEach(func() {
			settings.Window = 6
			settings.VolumeThreshold = 6
		})

		It("should open when a success completes the window at the threshold", func() {
			for i := 0; i < 3; i++ {
				_, _ = cb.Execute(ctx, fail(&calls))
			}
			for i := 0; i < 2; i++ {
				_, err := cb.Execute(ctx, succeed(&calls))
				Expect(err).NotTo(HaveOccurred())
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			}

			_, err := cb.Execute(ctx, succeed(&calls))
			Expect(err).NotTo(HaveOccurred())
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))

			_, err = cb.Execute(ctx, succeed(&calls))
			Expect(err).To(MatchError(circuitbreaker.ErrOpenState))
			Expect(calls).To(Equal(int32(6)))
		})

		It("should stay closed when successes keep the ratio below the threshold", func() {
			_, _ = cb.Execute(ctx, fail(&calls))
			_, _ = cb.Execute(ctx, fail(&calls))
			for i := 0; i < 4; i++ {
				_, _ = cb.Execute(ctx, succeed(&calls))
			}

			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Stats().WindowFailures).To(Equal(2))
		})
	})

	Describe("State.String", func() {
		It("should return correct string representation", func() {
			Expect(circuitbreaker.StateClosed.String()).To(Equal("CLOSED"))
			Expect(circuitbreaker.StateOpen.String()).To(Equal("OPEN"))
			Expect(circuitbreaker.StateHalfOpen.String()).To(Equal("HALF-OPEN"))
		})
	})
})
