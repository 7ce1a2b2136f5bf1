// Package adminapi exposes the booking REST API consumed by the portal and
// the manager/admin dashboards.
package adminapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/salonbook/salonbook/internal/app"
	"github.com/salonbook/salonbook/internal/booking"
	"github.com/salonbook/salonbook/internal/domain"
	"github.com/salonbook/salonbook/pkg/common"
	"gorm.io/gorm"
)

// InitRouter registers every API route. The web server must be initialized
// first.
func InitRouter() {
	registerAuthRoutes()
	registerCatalogRoutes()
	registerBookingRoutes()
	registerSlotRoutes()
	registerReviewRoutes()
	registerDashboardRoutes()
}

// GetAppContext retrieves the application context from the request
func GetAppContext(c echo.Context) app.AppContext {
	return c.Get("appctx").(app.AppContext)
}

// GetDB retrieves the database handle from the request
func GetDB(c echo.Context) *gorm.DB {
	return GetAppContext(c).DB()
}

// GetLifecycle retrieves the booking lifecycle manager from the request
func GetLifecycle(c echo.Context) *booking.Manager {
	return GetAppContext(c).Lifecycle()
}

// GetOperator retrieves the acting operator resolved by the auth middleware
func GetOperator(c echo.Context) *domain.SysOpr {
	if opr, found := c.Get("operator").(*domain.SysOpr); found {
		return opr
	}
	return nil
}

type apiResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Detail  interface{} `json:"detail,omitempty"`
}

type listResponse struct {
	Code     int         `json:"code"`
	Data     interface{} `json:"data"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// ajaxResponse is the shape returned to asynchronous-fragment callers.
type ajaxResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, apiResponse{Code: 0, Data: data})
}

func fail(c echo.Context, status int, code, message string, detail interface{}) error {
	return c.JSON(status, apiResponse{Code: 1, Message: code + ": " + message, Detail: detail})
}

func paged(c echo.Context, data interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, listResponse{Code: 0, Data: data, Total: total, Page: page, PageSize: pageSize})
}

// isAjax reports whether the caller asked for the async-fragment shape.
func isAjax(c echo.Context) bool {
	return c.Request().Header.Get("X-Requested-With") == "XMLHttpRequest"
}

func ajaxOK(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, ajaxResponse{Success: true, Message: message})
}

func ajaxFail(c echo.Context, status int, message string) error {
	return c.JSON(status, ajaxResponse{Success: false, Message: message})
}

// failErr maps lifecycle error kinds to HTTP responses, honoring the AJAX
// shape when requested.
func failErr(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	code := "DATABASE_ERROR"
	switch {
	case booking.IsNotFound(err):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case booking.IsConflict(err):
		status, code = http.StatusConflict, "CONFLICT"
	case booking.IsInvalidState(err):
		status, code = http.StatusBadRequest, "INVALID_STATE"
	}
	if isAjax(c) {
		return ajaxFail(c, status, err.Error())
	}
	return fail(c, status, code, err.Error(), nil)
}

func parsePagination(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("perPage"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}

func handleValidationError(c echo.Context, err error) error {
	if verrs, isValidation := err.(validator.ValidationErrors); isValidation {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return fail(c, http.StatusBadRequest, "VALIDATION_FAILED", "Invalid request parameters", fields)
	}
	return fail(c, http.StatusBadRequest, "VALIDATION_FAILED", "Invalid request parameters", nil)
}

// requireManager gates a handler on manager capability.
func requireManager(h echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		opr := GetOperator(c)
		if opr == nil || !opr.IsManager() {
			return fail(c, http.StatusForbidden, "FORBIDDEN", "Manager capability required", nil)
		}
		return h(c)
	}
}

// requireAdmin gates a handler on admin capability.
func requireAdmin(h echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		opr := GetOperator(c)
		if opr == nil || !opr.IsAdmin() {
			return fail(c, http.StatusForbidden, "FORBIDDEN", "Admin capability required", nil)
		}
		return h(c)
	}
}

// writeOprLog appends an audit entry for a manager/admin action.
func writeOprLog(c echo.Context, action, desc string) {
	opr := GetOperator(c)
	if opr == nil {
		return
	}
	GetDB(c).Create(&domain.SysOprLog{
		ID:        common.UUIDint64(),
		OprName:   opr.Username,
		OprIp:     c.RealIP(),
		OptAction: action,
		OptDesc:   desc,
		OptTime:   time.Now(),
	})
}
