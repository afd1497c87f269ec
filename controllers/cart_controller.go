package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/yashrajoria/docstore-service/common/errors"
	"github.com/yashrajoria/docstore-service/common/logger"
	"github.com/yashrajoria/docstore-service/models"
	"go.uber.org/zap"
)

// UpdateCartRequest is the PATCH body for a cart: one item to merge.
// Quantity is a pointer so an absent quantity is not read as zero, which
// would remove the item.
type UpdateCartRequest struct {
	SKU      string `json:"sku"`
	Quantity *int   `json:"quantity"`
}

// CartController serves the generic document routes for carts and replaces
// the field update with the item merge.
type CartController struct {
	*DocumentController
}

func NewCartController(resolver Resolver) *CartController {
	return &CartController{
		DocumentController: NewDocumentController(resolver, models.KindCart),
	}
}

// UpdateItem handles PATCH /:dbType/cart/:cartID
func (cc *CartController) UpdateItem(c *gin.Context) {
	carts, err := cc.resolver.Carts(c.Param("dbType"))
	if err != nil {
		fail(c, err)
		return
	}
	cartID := c.Param(models.KindCart.IDField)

	var req UpdateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.BadRequest("invalid JSON body", err))
		return
	}
	if req.Quantity == nil {
		fail(c, apperrors.BadRequest("quantity is required", nil))
		return
	}

	outcome, err := carts.UpdateItem(c.Request.Context(), cartID, models.CartItem{SKU: req.SKU, Quantity: *req.Quantity})
	if err != nil {
		fail(c, err)
		return
	}

	logger.Info(c, "Cart updated",
		zap.String("id", cartID),
		zap.String("sku", req.SKU),
		zap.String("outcome", string(outcome)),
	)
	c.JSON(http.StatusOK, gin.H{models.KindCart.IDField: cartID})
}
