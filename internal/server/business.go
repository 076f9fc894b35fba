package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storefront/internal/authorization"
	businessdomain "github.com/smallbiznis/storefront/internal/business/domain"
	"github.com/smallbiznis/storefront/internal/observability/logger"
	"go.uber.org/zap"
)

type createBusinessRequest struct {
	Name         string         `json:"name" binding:"required,max=200"`
	Slug         string         `json:"slug" binding:"omitempty,max=63"`
	ContactEmail string         `json:"contact_email" binding:"omitempty,email"`
	Metadata     map[string]any `json:"metadata"`
}

type publishTemplateRequest struct {
	Version int `json:"version" binding:"required,gte=1"`
}

// CreateBusiness registers a business and makes the calling user its owner.
func (s *Server) CreateBusiness(c *gin.Context) {
	var req createBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	actor, hasActor := s.actorFromContext(c)
	if s.cfg.Authorization.Enabled && (!hasActor || actor.Type != ActorUser) {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	resp, err := s.businessSvc.Create(ctx, businessdomain.CreateBusinessRequest{
		Name:         strings.TrimSpace(req.Name),
		Slug:         strings.TrimSpace(req.Slug),
		ContactEmail: strings.TrimSpace(req.ContactEmail),
		Metadata:     req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if hasActor && actor.Type == ActorUser && s.authzSvc != nil {
		if err := s.authzSvc.GrantRole(ctx, actor.subject(), resp.ID, authorization.RoleOwner); err != nil {
			logger.FromContext(ctx).Error("grant owner role failed",
				zap.String("business_id", resp.ID.String()),
				zap.Error(err),
			)
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetBusiness(c *gin.Context) {
	id, err := businessIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.businessSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateBusiness(c *gin.Context) {
	id, err := businessIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.businessSvc.Deactivate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PublishTemplate(c *gin.Context) {
	id, err := businessIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req publishTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	resp, err := s.businessSvc.PublishTemplate(c.Request.Context(), id, req.Version)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
