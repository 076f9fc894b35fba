package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ResolveTenantByHost answers which business serves a host or slug.
func (s *Server) ResolveTenantByHost(c *gin.Context) {
	host := strings.TrimSpace(c.Query("host"))
	if host == "" {
		AbortWithError(c, newValidationError("host", "required", "host is required"))
		return
	}

	resolution, err := s.tenantResolver.ResolveWithSource(c.Request.Context(), host)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextTenantSourceKey, string(resolution.Source))
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"business": resolution.Ref,
		"source":   resolution.Source,
	}})
}

// StorefrontTenant returns the business the storefront host routed to.
func (s *Server) StorefrontTenant(c *gin.Context) {
	ref, ok := businessFromContext(c)
	if !ok {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ref})
}
