package orders_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/api-gateway/internal/orders"
)

var _ = Describe("Handler", func() {
	var router http.Handler

	do := func(method, target, body string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, target, reader))
		return rec
	}

	BeforeEach(func() {
		router = orders.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil))).Routes()
	})

	It("should report health", func() {
		rec := do(http.MethodGet, "/orders/health", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"status":"OK"`))
	})

	Describe("create", func() {
		It("should assign increasing ids", func() {
			rec := do(http.MethodPost, "/orders", `{"userId":1,"entries":[1,2]}`)
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(rec.Body.String()).To(MatchJSON(`{"id":1,"userId":1,"entries":[1,2]}`))

			rec = do(http.MethodPost, "/orders", `{"userId":2}`)
			Expect(rec.Body.String()).To(MatchJSON(`{"id":2,"userId":2,"entries":[]}`))
		})

		It("should require a user", func() {
			rec := do(http.MethodPost, "/orders", `{"entries":[1]}`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("userId is required"))
		})
	})

	Describe("list", func() {
		BeforeEach(func() {
			do(http.MethodPost, "/orders", `{"userId":1,"entries":[1]}`)
			do(http.MethodPost, "/orders", `{"userId":2,"entries":[2]}`)
			do(http.MethodPost, "/orders", `{"userId":1,"entries":[3]}`)
		})

		It("should return every order", func() {
			rec := do(http.MethodGet, "/orders", "")
			Expect(rec.Body.String()).To(MatchJSON(`[
				{"id":1,"userId":1,"entries":[1]},
				{"id":2,"userId":2,"entries":[2]},
				{"id":3,"userId":1,"entries":[3]}
			]`))
		})

		It("should filter by user", func() {
			rec := do(http.MethodGet, "/orders?userId=1", "")
			Expect(rec.Body.String()).To(MatchJSON(`[
				{"id":1,"userId":1,"entries":[1]},
				{"id":3,"userId":1,"entries":[3]}
			]`))

			Expect(do(http.MethodGet, "/orders?userId=9", "").Body.String()).To(MatchJSON(`[]`))
			Expect(do(http.MethodGet, "/orders?userId=x", "").Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("by id", func() {
		BeforeEach(func() {
			do(http.MethodPost, "/orders", `{"userId":1,"entries":[1]}`)
		})

		It("should get, update and delete", func() {
			Expect(do(http.MethodGet, "/orders/1", "").Body.String()).To(MatchJSON(`{"id":1,"userId":1,"entries":[1]}`))

			rec := do(http.MethodPut, "/orders/1", `{"entries":[4,5]}`)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"id":1,"userId":1,"entries":[4,5]}`))

			rec = do(http.MethodPut, "/orders/1", `{}`)
			Expect(rec.Body.String()).To(MatchJSON(`{"id":1,"userId":1,"entries":[4,5]}`))

			rec = do(http.MethodDelete, "/orders/1", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"message":"Order deleted","deletedOrder":{"id":1,"userId":1,"entries":[4,5]}}`))

			Expect(do(http.MethodGet, "/orders/1", "").Code).To(Equal(http.StatusNotFound))
		})

		It("should answer 404 and 400", func() {
			rec := do(http.MethodGet, "/orders/7", "")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(rec.Body.String()).To(MatchJSON(`{"error":"Order not found"}`))

			Expect(do(http.MethodDelete, "/orders/7", "").Code).To(Equal(http.StatusNotFound))
			Expect(do(http.MethodGet, "/orders/abc", "").Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("scoped to an owner", func() {
		BeforeEach(func() {
			do(http.MethodPost, "/orders", `{"userId":1,"entries":[1]}`)
		})

		It("should serve the owner", func() {
			Expect(do(http.MethodGet, "/orders/1/1", "").Code).To(Equal(http.StatusOK))
			Expect(do(http.MethodPut, "/orders/1/1", `{"entries":[9]}`).Code).To(Equal(http.StatusOK))
			Expect(do(http.MethodDelete, "/orders/1/1", "").Code).To(Equal(http.StatusOK))
		})

		It("should hide the order from other users", func() {
			Expect(do(http.MethodGet, "/orders/2/1", "").Code).To(Equal(http.StatusNotFound))
			Expect(do(http.MethodPut, "/orders/2/1", `{"entries":[9]}`).Code).To(Equal(http.StatusNotFound))
			Expect(do(http.MethodDelete, "/orders/2/1", "").Code).To(Equal(http.StatusNotFound))

			Expect(do(http.MethodGet, "/orders/1", "").Body.String()).To(MatchJSON(`{"id":1,"userId":1,"entries":[1]}`))
		})
	})
})
