package adminapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/salonbook/salonbook/internal/booking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestFailErrStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{errors.Wrap(booking.ErrNotFound, "booking"), http.StatusNotFound, "NOT_FOUND"},
		{errors.Wrap(booking.ErrConflict, "time slot already taken"), http.StatusConflict, "CONFLICT"},
		{errors.Wrap(booking.ErrInvalidState, "booking not cancellable"), http.StatusBadRequest, "INVALID_STATE"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "DATABASE_ERROR"},
	}

	for _, tc := range cases {
		c, rec := newTestContext(t, nil)
		require.NoError(t, failErr(c, tc.err))
		assert.Equal(t, tc.status, rec.Code)

		var resp apiResponse
		require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Code)
		assert.Contains(t, resp.Message, tc.code)
	}
}

func TestFailErrAjaxShape(t *testing.T) {
	c, rec := newTestContext(t, map[string]string{"X-Requested-With": "XMLHttpRequest"})
	err := errors.Wrap(booking.ErrConflict, "time slot already taken")
	require.NoError(t, failErr(c, err))

	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp ajaxResponse
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "time slot already taken")
}

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=3&perPage=25", nil)
	c := echo.New().NewContext(req, httptest.NewRecorder())
	page, pageSize := parsePagination(c)
	assert.Equal(t, 3, page)
	assert.Equal(t, 25, pageSize)

	req = httptest.NewRequest(http.MethodGet, "/?page=-1&perPage=5000", nil)
	c = echo.New().NewContext(req, httptest.NewRecorder())
	page, pageSize = parsePagination(c)
	assert.Equal(t, 1, page)
	assert.Equal(t, 10, pageSize)
}
