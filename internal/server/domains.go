package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storefront/internal/dnsverify"
	domainbindingdomain "github.com/smallbiznis/storefront/internal/domainbinding/domain"
)

type bindDomainRequest struct {
	Hostname string `json:"hostname" binding:"required,hostname_fqdn"`
}

type recordVerificationRequest struct {
	Status   string `json:"status" binding:"required,oneof=pending verified failed"`
	DNSError string `json:"dns_error" binding:"max=1024"`
}

func (s *Server) ListDomains(c *gin.Context) {
	businessID, err := businessIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	bindings, err := s.registry.ListByBusiness(c.Request.Context(), businessID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if bindings == nil {
		bindings = []domainbindingdomain.DomainBinding{}
	}

	c.JSON(http.StatusOK, gin.H{"data": bindings})
}

// BindDomain claims a custom hostname. The response carries the token the
// business publishes as a TXT record before the hostname starts routing.
func (s *Server) BindDomain(c *gin.Context) {
	businessID, err := businessIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req bindDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	binding, err := s.registry.Bind(c.Request.Context(), req.Hostname, businessID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"binding":           binding,
		"verification_name": s.verificationRecordName(binding.Hostname),
	}})
}

// UnbindDomain releases a hostname owned by the business in the path.
// Hostnames owned by another business are reported as missing.
func (s *Server) UnbindDomain(c *gin.Context) {
	businessID, err := businessIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	binding, err := s.registry.Lookup(ctx, c.Param("hostname"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if binding.BusinessID != businessID {
		AbortWithError(c, ErrNotFound)
		return
	}

	if err := s.registry.Unbind(ctx, binding.Hostname); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RecordVerification accepts results from verifiers running outside this
// process.
func (s *Server) RecordVerification(c *gin.Context) {
	var req recordVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	binding, err := s.registry.RecordVerification(c.Request.Context(), domainbindingdomain.RecordVerificationRequest{
		Hostname: c.Param("hostname"),
		Status:   req.Status,
		DNSError: req.DNSError,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": binding})
}

func (s *Server) verificationRecordName(hostname string) string {
	return dnsverify.ProvideConfig(s.cfg).RecordName(hostname)
}
