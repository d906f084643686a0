package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-api/internal/models"
	"github.com/noah-isme/attendance-api/internal/service"
	appErrors "github.com/noah-isme/attendance-api/pkg/errors"
	"github.com/noah-isme/attendance-api/pkg/logger"
)

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

type memAudit struct {
	logs []*models.AuditLog
	err  error
}

func (m *memAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return m.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAndCapability(t *testing.T) {
	r := gin.New()
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent}
	r.Use(JWT(stubValidator{claims: claims}))
	r.GET("/leave", RequireCapability(models.CapLeaveCreate), func(c *gin.Context) {
		assert.Equal(t, "u-1", c.GetString(logger.ContextUserIDKey))
		c.Status(http.StatusOK)
	})
	r.GET("/schedules", RequireCapability(models.CapScheduleWrite), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/leave", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/leave", "bad").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/leave", "good").Code)
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/schedules", "good").Code)
}

func TestRequireCapabilityWithoutClaims(t *testing.T) {
	r := gin.New()
	r.GET("/x", RequireCapability(models.CapScheduleRead), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/x", "").Code)
}

func TestAuditRecordsSuccessfulRequestsOnly(t *testing.T) {
	audit := &memAudit{}
	r := gin.New()
	r.Use(JWT(stubValidator{claims: &models.JWTClaims{UserID: "u-9", Role: models.RoleManager}}))
	r.DELETE("/schedules/:id", Audit(audit, nil, models.AuditActionScheduleRetire, "schedule"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.POST("/schedules", Audit(audit, nil, models.AuditActionScheduleCreate, "schedule"), func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	perform(r, http.MethodDelete, "/schedules/sch-1", "good")
	perform(r, http.MethodPost, "/schedules", "good")

	require.Len(t, audit.logs, 1)
	log := audit.logs[0]
	assert.Equal(t, models.AuditActionScheduleRetire, log.Action)
	require.NotNil(t, log.ResourceID)
	assert.Equal(t, "sch-1", *log.ResourceID)
	require.NotNil(t, log.UserID)
	assert.Equal(t, "u-9", *log.UserID)
}

func TestAuditWriteFailureDoesNotAffectResponse(t *testing.T) {
	audit := &memAudit{err: errors.New("db down")}
	r := gin.New()
	r.POST("/leave", Audit(audit, nil, models.AuditActionLeaveCreate, "leave_request"), func(c *gin.Context) {
		c.Set(AuditResourceIDKey, "leave-1")
		c.Status(http.StatusCreated)
	})

	w := perform(r, http.MethodPost, "/leave", "")
	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "leave-1", *audit.logs[0].ResourceID)
}

func TestResponseMeta(t *testing.T) {
	r := gin.New()
	r.Use(ResponseMeta())
	var got map[string]interface{}
	r.GET("/x", func(c *gin.Context) {
		assert.Nil(t, Meta(c))
		SetCacheHit(c, true)
		got = Meta(c)
		c.Status(http.StatusOK)
	})

	perform(r, http.MethodGet, "/x", "")
	assert.Equal(t, true, got["cache_hit"])
	assert.Contains(t, got, "processing_time_ms")
}

func TestMetricsMiddlewareToleratesNilService(t *testing.T) {
	r := gin.New()
	r.Use(Metrics(nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/x", "").Code)
}

func TestMetricsMiddlewareSkipsListedRoutes(t *testing.T) {
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/schedules/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	perform(r, http.MethodGet, "/health", "")
	perform(r, http.MethodGet, "/schedules/sch-1", "")
	perform(r, http.MethodGet, "/nowhere", "")

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	var paths []string
	for _, family := range families {
		if family.GetName() != "http_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" {
					paths = append(paths, label.GetValue())
				}
			}
		}
	}
	assert.ElementsMatch(t, []string{"/schedules/:id", "unmatched"}, paths)
}
