package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/attendance-api/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestJSONMirrorsCacheHit(t *testing.T) {
	c, w := newContext()
	JSON(c, http.StatusOK, []string{}, nil, map[string]interface{}{"cache_hit": false})
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	c, w = newContext()
	JSON(c, http.StatusOK, []string{}, nil)
	assert.Empty(t, w.Header().Get("X-Cache"))
}

func TestErrorAttachesServerFaults(t *testing.T) {
	c, w := newContext()
	Error(c, appErrors.Clone(appErrors.ErrGroupConflict, "group already has a class in this slot"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, c.IsAborted())
	assert.Empty(t, c.Errors)

	c, w = newContext()
	Error(c, errors.New("connection reset"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Len(t, c.Errors, 1)
}

func TestCalendar(t *testing.T) {
	c, w := newContext()
	Calendar(c, "timetable-g-a.ics", []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="timetable-g-a.ics"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "private, max-age=300", w.Header().Get("Cache-Control"))
}
