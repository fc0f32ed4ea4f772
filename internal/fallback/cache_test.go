package fallback_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/session-cache/internal/fallback"
)

func TestFallback(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Fallback Suite")
}

var _ = Describe("Cache", func() {
	var cache *fallback.Cache

	BeforeEach(func() {
		cache = fallback.NewCache()
	})

	Describe("Get and Put", func() {
		It("should return a stored value before expiry", func() {
			cache.Put("k", "v", time.Minute)

			value, ok := cache.Get("k")
			Expect(ok).To(BeTrue())
			Expect(value).To(Equal("v"))
		})

		It("should miss on an absent key", func() {
			_, ok := cache.Get("nope")
			Expect(ok).To(BeFalse())
		})

		It("should miss once the entry expired", func() {
			cache.Put("k", "v", 10*time.Millisecond)
			time.Sleep(30 * time.Millisecond)

			_, ok := cache.Get("k")
			Expect(ok).To(BeFalse())
		})

		It("should refresh the expiry on upsert", func() {
			cache.Put("k", "old", 10*time.Millisecond)
			cache.Put("k", "new", time.Minute)
			time.Sleep(30 * time.Millisecond)

			value, ok := cache.Get("k")
			Expect(ok).To(BeTrue())
			Expect(value).To(Equal("new"))
		})
	})

	Describe("Delete", func() {
		It("should report whether a live entry existed", func() {
			cache.Put("k", "v", time.Minute)
			Expect(cache.Delete("k")).To(BeTrue())
			Expect(cache.Delete("k")).To(BeFalse())
		})

		It("should not count an expired entry as existing", func() {
			cache.Put("k", "v", 10*time.Millisecond)
			time.Sleep(30 * time.Millisecond)
			Expect(cache.Delete("k")).To(BeFalse())
		})
	})

	Describe("Cleanup", func() {
		It("should sweep only expired entries and return the count", func() {
			cache.Put("live", 1, time.Minute)
			cache.Put("dead1", 2, 10*time.Millisecond)
			cache.Put("dead2", 3, 10*time.Millisecond)
			time.Sleep(30 * time.Millisecond)

			Expect(cache.Cleanup()).To(Equal(2))
			Expect(cache.Len()).To(Equal(1))

			_, ok := cache.Get("live")
			Expect(ok).To(BeTrue())
		})

		It("should keep expired entries until swept", func() {
			cache.Put("dead", 1, 10*time.Millisecond)
			time.Sleep(30 * time.Millisecond)

			// No eviction on miss, only on Cleanup.
			_, ok := cache.Get("dead")
			Expect(ok).To(BeFalse())
			Expect(cache.Len()).To(Equal(1))
		})
	})

	Describe("Range", func() {
		It("should visit only unexpired entries", func() {
			cache.Put("a", 1, time.Minute)
			cache.Put("b", 2, time.Minute)
			cache.Put("dead", 3, 10*time.Millisecond)
			time.Sleep(30 * time.Millisecond)

			seen := map[string]bool{}
			cache.Range(func(key string, _ any) bool {
				seen[key] = true
				return true
			})

			Expect(seen).To(HaveLen(2))
			Expect(seen).To(HaveKey("a"))
			Expect(seen).To(HaveKey("b"))
		})

		It("should stop when the callback returns false", func() {
			cache.Put("a", 1, time.Minute)
			cache.Put("b", 2, time.Minute)

			visits := 0
			cache.Range(func(string, any) bool {
				visits++
				return false
			})

			Expect(visits).To(Equal(1))
		})
	})
})
