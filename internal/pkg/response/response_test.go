package response

import (
	"Parley/internal/api/dto"
	"Parley/internal/service"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, err error) dto.Response {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Error(c, err)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestErrorMapsKinds(t *testing.T) {
	resp := render(t, service.ErrCalleeBusy)
	assert.Equal(t, service.Conflict, resp.Code)
	assert.Equal(t, service.ErrCalleeBusy.Error(), resp.Message)

	resp = render(t, fmt.Errorf("send: %w", service.ErrSendRetryExhausted))
	assert.Equal(t, service.ServiceUnavailable, resp.Code)
}

func TestErrorHidesUnexpected(t *testing.T) {
	resp := render(t, errors.New("dial tcp 10.0.0.1:3306: connection refused"))
	assert.Equal(t, InternalServerError, resp.Code)
	assert.Equal(t, service.UnExpectedError.Error(), resp.Message)
}
