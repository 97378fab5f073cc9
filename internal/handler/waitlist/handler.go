package waitlist

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medflow/waitlist-api/internal/handler"
	"github.com/medflow/waitlist-api/internal/middleware"
	"github.com/medflow/waitlist-api/internal/model"
	"github.com/medflow/waitlist-api/internal/service/policy"
	"github.com/medflow/waitlist-api/internal/service/waitlist"
)

type Handler struct {
	service   *waitlist.Service
	policySvc *policy.Service
}

func NewHandler(service *waitlist.Service, policySvc *policy.Service) *Handler {
	return &Handler{service: service, policySvc: policySvc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	waitlists := r.Group("/waitlists")
	{
		waitlists.POST("", h.CreateEntry)
		waitlists.GET("", h.ListEntries)
		waitlists.GET("/policy", h.GetPolicy)
		waitlists.PUT("/policy", h.UpsertPolicy)
		waitlists.GET("/analytics", h.GetAnalytics)
		waitlists.POST("/bulk/status", h.BulkUpdateStatus)
		waitlists.GET("/:id", h.GetEntry)
		waitlists.PATCH("/:id/status", h.UpdateStatus)
		waitlists.POST("/:id/promote", h.Promote)
		waitlists.PATCH("/:id/priority", h.UpdatePriority)
	}
}

func (h *Handler) CreateEntry(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing tenant context"))
		return
	}

	var req model.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	input := &waitlist.EnqueueInput{
		TenantID:        tenantID,
		PatientID:       patientID,
		RequestedWindow: req.RequestedWindow,
		Notes:           req.Notes,
		Metadata:        req.Metadata,
		ActorID:         middleware.ActorID(c),
	}
	if input.ClinicID, err = parseOptionalID(req.ClinicID); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid clinic ID"))
		return
	}
	if input.DoctorID, err = parseOptionalID(req.DoctorID); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
		return
	}

	entry, err := h.service.Enqueue(c.Request.Context(), input)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(entry))
}

func (h *Handler) ListEntries(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing tenant context"))
		return
	}

	filters := &model.WaitlistFilters{TenantID: tenantID}

	var err error
	if filters.ClinicID, err = parseOptionalID(c.Query("clinic_id")); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid clinic ID"))
		return
	}
	if filters.DoctorID, err = parseOptionalID(c.Query("doctor_id")); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
		return
	}
	if filters.PatientID, err = parseOptionalID(c.Query("patient_id")); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	// status accepts a single value or a comma separated set
	if status := c.Query("status"); status != "" {
		for _, s := range strings.Split(status, ",") {
			filters.Statuses = append(filters.Statuses, model.WaitlistStatus(strings.TrimSpace(s)))
		}
	}

	if filters.Page, err = intQuery(c, "page", 1); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid page"))
		return
	}
	if filters.PageSize, err = intQuery(c, "page_size", model.DefaultPageSize); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid page size"))
		return
	}
	filters.SortBy = model.SortField(c.DefaultQuery("sort_by", string(model.SortByPriority)))

	entries, total, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   entries,
		"meta":   handler.NewListMeta(total, filters.Page, filters.PageSize),
	})
}

func (h *Handler) GetEntry(c *gin.Context) {
	tenantID, entryID, ok := h.tenantAndEntry(c)
	if !ok {
		return
	}

	entry, err := h.service.Get(c.Request.Context(), tenantID, entryID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	tenantID, entryID, ok := h.tenantAndEntry(c)
	if !ok {
		return
	}

	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	entry, err := h.service.UpdateStatus(c.Request.Context(), tenantID, entryID,
		model.WaitlistStatus(req.Status), middleware.ActorID(c), req.Notes)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) Promote(c *gin.Context) {
	tenantID, entryID, ok := h.tenantAndEntry(c)
	if !ok {
		return
	}

	var req model.PromoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	appointmentID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	entry, err := h.service.Promote(c.Request.Context(), tenantID, entryID,
		appointmentID, middleware.ActorID(c), req.Notes)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) UpdatePriority(c *gin.Context) {
	tenantID, entryID, ok := h.tenantAndEntry(c)
	if !ok {
		return
	}

	var req model.UpdatePriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	entry, err := h.service.UpdatePriority(c.Request.Context(), tenantID, entryID,
		*req.PriorityScore, middleware.ActorID(c), req.Notes)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) BulkUpdateStatus(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing tenant context"))
		return
	}

	var req model.BulkUpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	entryIDs := make([]uuid.UUID, 0, len(req.EntryIDs))
	for _, raw := range req.EntryIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid entry ID"))
			return
		}
		entryIDs = append(entryIDs, id)
	}

	entries, err := h.service.BulkUpdateStatus(c.Request.Context(), tenantID, entryIDs,
		model.WaitlistStatus(req.Status), middleware.ActorID(c), req.Notes)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}

func (h *Handler) GetPolicy(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing tenant context"))
		return
	}

	clinicID, err := parseOptionalID(c.Query("clinic_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid clinic ID"))
		return
	}

	effective, err := h.policySvc.Resolve(c.Request.Context(), tenantID, clinicID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(effective))
}

func (h *Handler) UpsertPolicy(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing tenant context"))
		return
	}

	var req model.UpsertPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	stored, err := h.policySvc.Upsert(c.Request.Context(), tenantID, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(stored))
}

func (h *Handler) GetAnalytics(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing tenant context"))
		return
	}

	clinicID, err := parseOptionalID(c.Query("clinic_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid clinic ID"))
		return
	}

	counts, err := h.service.Counts(c.Request.Context(), tenantID, clinicID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(counts))
}

func (h *Handler) tenantAndEntry(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing tenant context"))
		return uuid.Nil, uuid.Nil, false
	}

	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid entry ID"))
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, entryID, true
}

func parseOptionalID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func intQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
