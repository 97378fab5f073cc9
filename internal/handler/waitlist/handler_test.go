package waitlist_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	waitlistHandler "github.com/medflow/waitlist-api/internal/handler/waitlist"
	"github.com/medflow/waitlist-api/internal/middleware"
	"github.com/medflow/waitlist-api/internal/model"
	"github.com/medflow/waitlist-api/internal/repository/memory"
	policyService "github.com/medflow/waitlist-api/internal/service/policy"
	waitlistService "github.com/medflow/waitlist-api/internal/service/waitlist"
	"github.com/medflow/waitlist-api/pkg/locker"
)

func newTestRouter(tenantID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)

	auditRepo := memory.NewAuditRepository()
	repo := memory.NewWaitlistRepository(auditRepo)
	policySvc := policyService.NewService(memory.NewPolicyRepository(), 0)
	svc := waitlistService.NewService(
		repo, auditRepo, memory.NewOutboxRepository(),
		policySvc, locker.Noop{}, waitlistService.NewArrivalScorer(), nil,
	)

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	// Stand-in for Authenticate: the tests exercise the handlers, not JWT
	// parsing.
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextTenantID, tenantID)
		c.Next()
	})

	api := r.Group("/api/v1")
	waitlistHandler.NewHandler(svc, policySvc).RegisterRoutes(api)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateEntryEndpoint(t *testing.T) {
	r := newTestRouter(uuid.New())

	w := doJSON(t, r, http.MethodPost, "/api/v1/waitlists", gin.H{
		"patient_id": uuid.New().String(),
		"clinic_id":  uuid.New().String(),
		"notes":      "prefers mornings",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Status string              `json:"status"`
		Data   model.WaitlistEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, model.WaitlistStatusActive, resp.Data.Status)
	assert.NotEqual(t, uuid.Nil, resp.Data.ID)
}

func TestCreateEntryValidation(t *testing.T) {
	r := newTestRouter(uuid.New())

	// Missing patient_id fails binding.
	w := doJSON(t, r, http.MethodPost, "/api/v1/waitlists", gin.H{"notes": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/waitlists", gin.H{"patient_id": "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateEntryDuplicateConflict(t *testing.T) {
	r := newTestRouter(uuid.New())
	body := gin.H{"patient_id": uuid.New().String()}

	w := doJSON(t, r, http.MethodPost, "/api/v1/waitlists", body)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/waitlists", body)
	assert.Equal(t, http.StatusConflict, w.Code)

	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Message, "queued")
}

func TestGetEntryNotFound(t *testing.T) {
	r := newTestRouter(uuid.New())

	w := doJSON(t, r, http.MethodGet, "/api/v1/waitlists/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/waitlists/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateStatusEndpoint(t *testing.T) {
	r := newTestRouter(uuid.New())

	w := doJSON(t, r, http.MethodPost, "/api/v1/waitlists", gin.H{"patient_id": uuid.New().String()})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Data model.WaitlistEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	path := fmt.Sprintf("/api/v1/waitlists/%s/status", created.Data.ID)

	w = doJSON(t, r, http.MethodPatch, path, gin.H{"status": "invited"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Direct promotion must go through the promote endpoint.
	w = doJSON(t, r, http.MethodPatch, path, gin.H{"status": "promoted"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// A value outside the enum fails binding.
	w = doJSON(t, r, http.MethodPatch, path, gin.H{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPromoteEndpoint(t *testing.T) {
	r := newTestRouter(uuid.New())

	w := doJSON(t, r, http.MethodPost, "/api/v1/waitlists", gin.H{"patient_id": uuid.New().String()})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Data model.WaitlistEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	appointmentID := uuid.New()
	w = doJSON(t, r, http.MethodPost,
		fmt.Sprintf("/api/v1/waitlists/%s/promote", created.Data.ID),
		gin.H{"appointment_id": appointmentID.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data model.WaitlistEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.WaitlistStatusPromoted, resp.Data.Status)
	require.NotNil(t, resp.Data.PromotedAppointmentID)
	assert.Equal(t, appointmentID, *resp.Data.PromotedAppointmentID)
}

func TestListEndpointMeta(t *testing.T) {
	r := newTestRouter(uuid.New())

	for i := 0; i < 3; i++ {
		w := doJSON(t, r, http.MethodPost, "/api/v1/waitlists", gin.H{"patient_id": uuid.New().String()})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, r, http.MethodGet, "/api/v1/waitlists?page=1&page_size=2&status=active", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status string                `json:"status"`
		Data   []model.WaitlistEntry `json:"data"`
		Meta   struct {
			Total      int `json:"total"`
			Page       int `json:"page"`
			PageSize   int `json:"page_size"`
			TotalPages int `json:"total_pages"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, 3, resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.TotalPages)
}

func TestListEndpointRejectsMalformedPagination(t *testing.T) {
	r := newTestRouter(uuid.New())

	w := doJSON(t, r, http.MethodGet, "/api/v1/waitlists?page=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/api/v1/waitlists?page_size=two", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	// Empty values still fall back to the defaults.
	w = doJSON(t, r, http.MethodGet, "/api/v1/waitlists?page=&page_size=", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestPolicyEndpoints(t *testing.T) {
	r := newTestRouter(uuid.New())

	w := doJSON(t, r, http.MethodGet, "/api/v1/waitlists/policy", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resolved struct {
		Data model.EffectivePolicy `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resolved))
	assert.Equal(t, model.PolicySourceDefault, resolved.Data.Source)

	w = doJSON(t, r, http.MethodPut, "/api/v1/waitlists/policy", gin.H{"max_queue_size": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/api/v1/waitlists/policy", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resolved))
	assert.Equal(t, model.PolicySourceTenant, resolved.Data.Source)
	assert.Equal(t, 5, resolved.Data.MaxQueueSize)

	// Binding catches out-of-range values before the service.
	w = doJSON(t, r, http.MethodPut, "/api/v1/waitlists/policy", gin.H{"auto_expiry_hours": 400})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyticsEndpoint(t *testing.T) {
	r := newTestRouter(uuid.New())

	w := doJSON(t, r, http.MethodPost, "/api/v1/waitlists", gin.H{"patient_id": uuid.New().String()})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/waitlists/analytics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data model.StatusCounts `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.ByStatus[model.WaitlistStatusActive])
}

func TestBulkStatusEndpoint(t *testing.T) {
	r := newTestRouter(uuid.New())

	ids := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		w := doJSON(t, r, http.MethodPost, "/api/v1/waitlists", gin.H{"patient_id": uuid.New().String()})
		require.Equal(t, http.StatusCreated, w.Code)
		var created struct {
			Data model.WaitlistEntry `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		ids = append(ids, created.Data.ID.String())
	}

	w := doJSON(t, r, http.MethodPost, "/api/v1/waitlists/bulk/status", gin.H{
		"entry_ids": ids,
		"status":    "invited",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// An unknown id anywhere in the batch fails the whole request.
	w = doJSON(t, r, http.MethodPost, "/api/v1/waitlists/bulk/status", gin.H{
		"entry_ids": append(ids, uuid.New().String()),
		"status":    "cancelled",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
