package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/storefront/internal/observability/context"
	"github.com/stretchr/testify/assert"
)

func TestGinMiddlewarePropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))

	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = obscontext.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-Id"))
}

func TestGinMiddlewareGeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestOperationFromSQL(t *testing.T) {
	cases := []struct {
		sql  string
		want string
	}{
		{sql: "select * from coupons", want: "SELECT"},
		{sql: "  insert into coupon_redemptions (id) values (1)", want: "INSERT"},
		{sql: "UPDATE coupons SET usage_count = usage_count + 1 WHERE id = 1", want: "UPDATE"},
		{sql: "WITH due AS (SELECT id FROM coupons) UPDATE coupons SET usage_count = 0", want: "UPDATE"},
		{sql: "WITH a AS (SELECT (1)), b AS (SELECT 2) DELETE FROM coupon_redemptions", want: "DELETE"},
		{sql: "with recent as (select * from domain_bindings where (status = 'x')) select 1", want: "SELECT"},
		{sql: "(SELECT 1)", want: "SELECT"},
		{sql: "VACUUM", want: "UNKNOWN"},
		{sql: "", want: "UNKNOWN"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, operationFromSQL(tc.sql), tc.sql)
	}
}
