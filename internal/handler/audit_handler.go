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

// AuditHandler exposes compliance package, attachment, and finding endpoints.
type AuditHandler struct {
	service *service.AuditService
}

// NewAuditHandler constructs handler.
func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// GetPackage godoc
// @Summary Get compliance package
// @Description Returns the audit package for a request, building it on demand
// @Tags Audit
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id}/package [get]
func (h *AuditHandler) GetPackage(c *gin.Context) {
	pkg, err := h.service.GetPackage(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pkg, nil)
}

// RebuildPackage godoc
// @Summary Rebuild compliance package
// @Description Discards the cached package and recomputes from source facts
// @Tags Audit
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /requests/{id}/package/rebuild [post]
func (h *AuditHandler) RebuildPackage(c *gin.Context) {
	pkg, err := h.service.RebuildPackage(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pkg, nil)
}

// ValidatePackage godoc
// @Summary Validate compliance package
// @Description Reports missing documents and failed checks with remediation hints
// @Tags Audit
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/package/validate [get]
func (h *AuditHandler) ValidatePackage(c *gin.Context) {
	report, err := h.service.Validate(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ListPackages godoc
// @Summary List compliance packages
// @Tags Audit
// @Produce json
// @Param status query string false "Comma separated package status filter"
// @Param page query int false "Page"
// @Param perPage query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit/packages [get]
func (h *AuditHandler) ListPackages(c *gin.Context) {
	var statuses []models.PackageStatus
	for _, raw := range splitQuery(c, "status") {
		statuses = append(statuses, models.PackageStatus(raw))
	}

	page := queryInt(c, "page")
	if page < 1 {
		page = 1
	}
	perPage := queryInt(c, "perPage")
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}

	summaries, err := h.service.ListPackages(c.Request.Context(), actorFromContext(c), statuses, perPage, (page-1)*perPage)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summaries, nil)
}

// RegisterAttachment godoc
// @Summary Register attachment
// @Description Link an uploaded supporting document to a request
// @Tags Audit
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.AttachmentPayload true "Attachment details"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /requests/{id}/attachments [post]
func (h *AuditHandler) RegisterAttachment(c *gin.Context) {
	var payload dto.AttachmentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attachment payload"))
		return
	}

	attachment, err := h.service.RegisterAttachment(c.Request.Context(), actorFromContext(c), c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attachment)
}

// ListFindings godoc
// @Summary List findings
// @Tags Audit
// @Produce json
// @Param requestId query string false "Request ID filter"
// @Param status query string false "Comma separated status filter"
// @Param severity query string false "Severity filter"
// @Param page query int false "Page"
// @Param perPage query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit/findings [get]
func (h *AuditHandler) ListFindings(c *gin.Context) {
	query := dto.FindingQuery{
		RequestID: c.Query("requestId"),
		Page:      queryInt(c, "page"),
		PerPage:   queryInt(c, "perPage"),
	}
	for _, raw := range splitQuery(c, "status") {
		query.Status = append(query.Status, models.FindingStatus(raw))
	}
	for _, raw := range splitQuery(c, "severity") {
		query.Severity = append(query.Severity, models.FindingSeverity(raw))
	}

	findings, err := h.service.ListFindings(c.Request.Context(), actorFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, findings, nil)
}

// CardholderResponse godoc
// @Summary Respond to finding as cardholder
// @Description Acknowledge, resolve, or request an extension on a finding
// @Tags Audit
// @Accept json
// @Produce json
// @Param id path string true "Finding ID"
// @Param payload body dto.CardholderResponsePayload true "Response"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /audit/findings/{id}/cardholder-response [post]
func (h *AuditHandler) CardholderResponse(c *gin.Context) {
	var payload dto.CardholderResponsePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid response payload"))
		return
	}

	finding, err := h.service.RespondAsCardholder(c.Request.Context(), actorFromContext(c), c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, finding, nil)
}

// AuditorResponse godoc
// @Summary Respond to finding as auditor
// @Description Accept, reject, or escalate a finding
// @Tags Audit
// @Accept json
// @Produce json
// @Param id path string true "Finding ID"
// @Param payload body dto.AuditorResponsePayload true "Response"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /audit/findings/{id}/auditor-response [post]
func (h *AuditHandler) AuditorResponse(c *gin.Context) {
	var payload dto.AuditorResponsePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid response payload"))
		return
	}

	finding, err := h.service.RespondAsAuditor(c.Request.Context(), actorFromContext(c), c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, finding, nil)
}

// AuditStatus godoc
// @Summary Get audit status rollup
// @Description Derives the package-level audit status from its findings
// @Tags Audit
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/audit-status [get]
func (h *AuditHandler) AuditStatus(c *gin.Context) {
	status, err := h.service.AuditStatus(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"auditStatus": status}, nil)
}
