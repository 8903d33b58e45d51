package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
)

func perform(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	handler(c)
	return rec
}

func TestErrorEnvelope(t *testing.T) {
	rec := perform(func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrSlotConflict, "taken"))
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "SLOT_CONFLICT", body.Error.Code)
	assert.Equal(t, "taken", body.Error.Message)
	assert.Nil(t, body.Data)
}

func TestErrorStoreUnavailableSetsRetryAfter(t *testing.T) {
	rec := perform(func(c *gin.Context) {
		Error(c, appErrors.FromStore(context.DeadlineExceeded, "db down"))
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = perform(func(c *gin.Context) { Error(c, errors.New("unexpected")) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAttachment(t *testing.T) {
	rec := perform(func(c *gin.Context) {
		Attachment(c, "agenda_t1_2026-03-02.csv", "text/csv", []byte("a,b\n"))
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="agenda_t1_2026-03-02.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "a,b\n", rec.Body.String())
}
