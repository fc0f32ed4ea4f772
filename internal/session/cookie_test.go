package session_test

import (
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/session-cache/internal/session"
)

var _ = Describe("Session cookie", func() {
	Describe("SetCookie", func() {
		It("should issue an HttpOnly Lax cookie carrying the session id", func() {
			rec := httptest.NewRecorder()
			session.SetCookie(rec, "abc-123", session.CookieOptions{TTL: time.Hour})

			cookies := rec.Result().Cookies()
			Expect(cookies).To(HaveLen(1))

			cookie := cookies[0]
			Expect(cookie.Name).To(Equal(session.CookieName))
			Expect(cookie.Value).To(Equal("abc-123"))
			Expect(cookie.HttpOnly).To(BeTrue())
			Expect(cookie.Secure).To(BeFalse())
			Expect(cookie.SameSite).To(Equal(http.SameSiteLaxMode))
			Expect(cookie.MaxAge).To(Equal(3600))
			Expect(cookie.Path).To(Equal("/"))
		})

		It("should honor the secure flag", func() {
			rec := httptest.NewRecorder()
			session.SetCookie(rec, "abc-123", session.CookieOptions{Secure: true, TTL: time.Hour})

			Expect(rec.Result().Cookies()[0].Secure).To(BeTrue())
		})
	})

	Describe("ClearCookie", func() {
		It("should expire the cookie immediately", func() {
			rec := httptest.NewRecorder()
			session.ClearCookie(rec, session.CookieOptions{})

			cookie := rec.Result().Cookies()[0]
			Expect(cookie.Value).To(BeEmpty())
			Expect(cookie.MaxAge).To(BeNumerically("<", 0))
		})
	})

	Describe("ReadCookie", func() {
		It("should extract the session id from a request", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "abc-123"})

			sid, ok := session.ReadCookie(req)
			Expect(ok).To(BeTrue())
			Expect(sid).To(Equal("abc-123"))
		})

		It("should report absence", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)

			_, ok := session.ReadCookie(req)
			Expect(ok).To(BeFalse())
		})
	})
})
