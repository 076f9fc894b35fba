package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	tenantdomain "github.com/smallbiznis/storefront/internal/tenant/domain"
	"github.com/smallbiznis/storefront/pkg/tenantctx"
)

const (
	HeaderStorefrontHost = "X-Storefront-Host"

	contextBusinessKey     = "business_ref"
	contextTenantSourceKey = "tenant_source"
)

// ResolveTenant routes a storefront request to its business by host. A proxy
// in front of the storefront may pass the original host in X-Storefront-Host.
func (s *Server) ResolveTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		host := strings.TrimSpace(c.GetHeader(HeaderStorefrontHost))
		if host == "" {
			host = c.Request.Host
		}

		resolution, err := s.tenantResolver.ResolveWithSource(c.Request.Context(), host)
		if err != nil {
			if errors.Is(err, tenantdomain.ErrNotFound) {
				AbortWithError(c, ErrNotFound)
				return
			}
			AbortWithError(c, err)
			return
		}

		c.Set(contextBusinessKey, resolution.Ref)
		c.Set(contextTenantSourceKey, string(resolution.Source))
		c.Request = c.Request.WithContext(tenantctx.WithBusiness(c.Request.Context(), resolution.Ref))
		c.Next()
	}
}

func businessFromContext(c *gin.Context) (tenantctx.BusinessRef, bool) {
	value, ok := c.Get(contextBusinessKey)
	if !ok {
		return tenantctx.BusinessRef{}, false
	}
	ref, ok := value.(tenantctx.BusinessRef)
	return ref, ok && !ref.IsZero()
}
