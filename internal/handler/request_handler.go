package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openprocure/procure-api/internal/dto"
	"github.com/openprocure/procure-api/internal/models"
	"github.com/openprocure/procure-api/internal/service"
	appErrors "github.com/openprocure/procure-api/pkg/errors"
	"github.com/openprocure/procure-api/pkg/response"
)

// RequestHandler exposes the procurement request lifecycle endpoints.
type RequestHandler struct {
	service *service.RequestService
}

// NewRequestHandler constructs handler.
func NewRequestHandler(svc *service.RequestService) *RequestHandler {
	return &RequestHandler{service: svc}
}

// Create godoc
// @Summary Create purchase request
// @Description Create a new draft purchase request owned by the caller
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateRequestPayload true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var payload dto.CreateRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}

	created, err := h.service.Create(c.Request.Context(), actorFromContext(c), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Get godoc
// @Summary Get purchase request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	request, err := h.service.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// List godoc
// @Summary List purchase requests
// @Description List requests visible to the caller's role
// @Tags Requests
// @Produce json
// @Param status query string false "Comma separated status filter"
// @Param vendor query string false "Vendor filter"
// @Param page query int false "Page"
// @Param perPage query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	query := dto.RequestQuery{
		RequesterID: c.Query("requesterId"),
		Vendor:      c.Query("vendor"),
		Page:        queryInt(c, "page"),
		PerPage:     queryInt(c, "perPage"),
	}
	for _, raw := range splitQuery(c, "status") {
		query.Status = append(query.Status, models.RequestStatus(raw))
	}

	requests, pagination, err := h.service.List(c.Request.Context(), actorFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Update godoc
// @Summary Update purchase request
// @Description Update an editable request (Draft or Returned)
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.UpdateRequestPayload true "Fields to update"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [put]
func (h *RequestHandler) Update(c *gin.Context) {
	var payload dto.UpdateRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}

	updated, err := h.service.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Transition godoc
// @Summary Transition request status
// @Description Move a request along the lifecycle graph
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.TransitionPayload true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/transition [post]
func (h *RequestHandler) Transition(c *gin.Context) {
	var payload dto.TransitionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid transition payload"))
		return
	}

	updated, err := h.service.Transition(c.Request.Context(), actorFromContext(c), c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// NextActions godoc
// @Summary List valid next states
// @Description States the caller can move the request to
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/next-actions [get]
func (h *RequestHandler) NextActions(c *gin.Context) {
	states, err := h.service.NextActions(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"nextStates": states}, nil)
}

// Approvals godoc
// @Summary List approval history
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/approvals [get]
func (h *RequestHandler) Approvals(c *gin.Context) {
	approvals, err := h.service.Approvals(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvals, nil)
}
