package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/yashrajoria/docstore-service/common/errors"
	"github.com/yashrajoria/docstore-service/common/logger"
	"github.com/yashrajoria/docstore-service/models"
	"github.com/yashrajoria/docstore-service/repository"
	"go.uber.org/zap"
)

// Resolver hands out the repository serving a dbType.
type Resolver interface {
	Carts(dbType string) (repository.CartStore, error)
	Documents(kind models.Kind, dbType string) (repository.DocumentStore, error)
}

// DocumentController serves create, read, field update and delete for one
// resource kind. The identifier is read from the path parameter named after
// the kind's id field.
type DocumentController struct {
	resolver Resolver
	kind     models.Kind
}

func NewDocumentController(resolver Resolver, kind models.Kind) *DocumentController {
	return &DocumentController{resolver: resolver, kind: kind}
}

func (dc *DocumentController) repo(c *gin.Context) (repository.DocumentStore, bool) {
	repo, err := dc.resolver.Documents(dc.kind, c.Param("dbType"))
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return repo, true
}

func (dc *DocumentController) idBody(id string) gin.H {
	return gin.H{dc.kind.IDField: id}
}

// Create handles POST /:dbType/<kind>
func (dc *DocumentController) Create(c *gin.Context) {
	repo, ok := dc.repo(c)
	if !ok {
		return
	}

	var doc models.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		fail(c, apperrors.BadRequest("invalid JSON body", err))
		return
	}

	id, err := repo.Create(c.Request.Context(), doc)
	if err != nil {
		fail(c, err)
		return
	}

	logger.Info(c, dc.kind.Label+" added", zap.String("id", id), zap.Int("status", http.StatusCreated))
	c.JSON(http.StatusCreated, dc.idBody(id))
}

// Get handles GET /:dbType/<kind>/:id and returns the stored document as is.
func (dc *DocumentController) Get(c *gin.Context) {
	repo, ok := dc.repo(c)
	if !ok {
		return
	}
	id := c.Param(dc.kind.IDField)

	doc, err := repo.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	logger.Debug(c, dc.kind.Label+" found", zap.String("id", id))
	c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
}

// Update handles PATCH /:dbType/<kind>/:id with a map of fields to set.
func (dc *DocumentController) Update(c *gin.Context) {
	repo, ok := dc.repo(c)
	if !ok {
		return
	}
	id := c.Param(dc.kind.IDField)

	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		fail(c, apperrors.BadRequest("invalid JSON body", err))
		return
	}
	if fields == nil {
		fields = map[string]any{}
	}

	if err := repo.Update(c.Request.Context(), id, fields); err != nil {
		fail(c, err)
		return
	}

	logger.Info(c, dc.kind.Label+" updated", zap.String("id", id), zap.Int("fields", len(fields)))
	c.JSON(http.StatusOK, dc.idBody(id))
}

// Delete handles DELETE /:dbType/<kind>/:id
func (dc *DocumentController) Delete(c *gin.Context) {
	repo, ok := dc.repo(c)
	if !ok {
		return
	}
	id := c.Param(dc.kind.IDField)

	if err := repo.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}

	logger.Info(c, dc.kind.Label+" deleted", zap.String("id", id))
	c.JSON(http.StatusOK, dc.idBody(id))
}
