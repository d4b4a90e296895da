package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openprocure/procure-api/internal/dto"
	"github.com/openprocure/procure-api/internal/service"
	appErrors "github.com/openprocure/procure-api/pkg/errors"
	"github.com/openprocure/procure-api/pkg/response"
)

// PurchaseHandler exposes purchase record and reconciliation endpoints.
type PurchaseHandler struct {
	service *service.PurchaseService
}

// NewPurchaseHandler constructs handler.
func NewPurchaseHandler(svc *service.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{service: svc}
}

// Record godoc
// @Summary Record purchase
// @Description Record the executed purchase details against a request
// @Tags Purchases
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.RecordPurchasePayload true "Purchase details"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/purchase [post]
func (h *PurchaseHandler) Record(c *gin.Context) {
	var payload dto.RecordPurchasePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid purchase payload"))
		return
	}

	purchase, err := h.service.Record(c.Request.Context(), actorFromContext(c), c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, purchase)
}

// Get godoc
// @Summary Get purchase for request
// @Tags Purchases
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id}/purchase [get]
func (h *PurchaseHandler) Get(c *gin.Context) {
	purchase, err := h.service.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, purchase, nil)
}

// Reconcile godoc
// @Summary Reconcile purchase
// @Description Attach the receipt and close the purchase out
// @Tags Purchases
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ReconcilePayload true "Reconciliation details"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/reconcile [post]
func (h *PurchaseHandler) Reconcile(c *gin.Context) {
	var payload dto.ReconcilePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reconcile payload"))
		return
	}

	purchase, err := h.service.Reconcile(c.Request.Context(), actorFromContext(c), c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, purchase, nil)
}
