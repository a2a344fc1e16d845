package loadbalancer_test

import (
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/api-gateway/internal/backend"
	"github.com/angeloszaimis/api-gateway/internal/loadbalancer"
	"github.com/angeloszaimis/api-gateway/internal/strategy"
)

var _ = Describe("LoadBalancer", func() {
	var (
		lb       *loadbalancer.LoadBalancer
		replicas []*backend.Replica
	)

	BeforeEach(func() {
		replicas = []*backend.Replica{
			backend.New(mustParseURL("http://localhost:8001")),
			backend.New(mustParseURL("http://localhost:8002")),
		}
		lb = loadbalancer.NewLoadBalancer(strategy.NewRoundRobinStrategy(), replicas)
	})

	Describe("Reserve", func() {
		It("should alternate between healthy replicas", func() {
			first, err := lb.Reserve()
			Expect(err).NotTo(HaveOccurred())
			second, err := lb.Reserve()
			Expect(err).NotTo(HaveOccurred())

			Expect(first).To(Equal(replicas[0]))
			Expect(second).To(Equal(replicas[1]))
		})

		It("should mark a call in flight on the chosen replica", func() {
			chosen, err := lb.Reserve()
			Expect(err).NotTo(HaveOccurred())
			Expect(chosen.ActiveCalls()).To(Equal(1))

			chosen.Release()
			Expect(chosen.ActiveCalls()).To(Equal(0))
		})

		It("should skip unhealthy replicas", func() {
			replicas[0].SetHealthy(false)

			for i := 0; i < 3; i++ {
				chosen, err := lb.Reserve()
				Expect(err).NotTo(HaveOccurred())
				Expect(chosen).To(Equal(replicas[1]))
			}
		})

		It("should fail when no replica is healthy", func() {
			replicas[0].SetHealthy(false)
			replicas[1].SetHealthy(false)

			chosen, err := lb.Reserve()
			Expect(err).To(MatchError(loadbalancer.ErrNoHealthyReplica))
			Expect(chosen).To(BeNil())
		})
	})

	Describe("Replicas", func() {
		It("should return every replica", func() {
			replicas[0].SetHealthy(false)
			Expect(lb.Replicas()).To(HaveLen(2))
		})
	})
})

func mustParseURL(rawURL string) *url.URL {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return u
}
