package adminapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/labstack/echo/v4"
	"github.com/salonbook/salonbook/internal/booking"
	"github.com/salonbook/salonbook/internal/domain"
	"github.com/salonbook/salonbook/internal/webserver"
	"go.uber.org/zap"
)

type bookingPayload struct {
	ServiceId  int64  `json:"service_id,string" validate:"required"`
	TimeSlotId int64  `json:"time_slot_id,string" validate:"required"`
	Notes      string `json:"notes" validate:"omitempty,max=2000"`
}

type statusPayload struct {
	Status       string `json:"status" validate:"required,oneof=pending confirmed cancelled completed"`
	ManagerNotes string `json:"manager_notes" validate:"omitempty,max=2000"`
}

func registerBookingRoutes() {
	webserver.ApiPOST("/bookings", createBooking)
	webserver.ApiPOST("/bookings/:id/cancel", cancelBooking)
	webserver.ApiGET("/bookings", requireManager(listBookings))
	webserver.ApiGET("/bookings/export", requireManager(exportBookings))
	webserver.ApiGET("/bookings/:id", requireManager(getBooking))
	webserver.ApiPUT("/bookings/:id/status", requireManager(updateBookingStatus))
}

func createBooking(c echo.Context) error {
	var payload bookingPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse booking parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	opr := GetOperator(c)
	created, err := GetLifecycle(c).Create(c.Request().Context(),
		opr.ID, payload.ServiceId, payload.TimeSlotId, payload.Notes)
	if err != nil {
		return failErr(c, err)
	}

	if isAjax(c) {
		return ajaxOK(c, "Booking created, awaiting confirmation")
	}
	return ok(c, created)
}

func cancelBooking(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid booking ID", nil)
	}

	opr := GetOperator(c)
	cancelled, err := GetLifecycle(c).Cancel(c.Request().Context(), id, opr.ID)
	if err != nil {
		return failErr(c, err)
	}

	if isAjax(c) {
		return ajaxOK(c, "Booking cancelled")
	}
	return ok(c, cancelled)
}

// listBookings serves the manager dashboard tabs: all, pending, today.
func listBookings(c echo.Context) error {
	page, pageSize := parsePagination(c)
	db := GetDB(c).Model(&domain.Booking{})

	switch c.QueryParam("tab") {
	case "pending":
		db = db.Where("status = ?", domain.BookingPending)
	case "today":
		today := booking.Midnight(time.Now())
		db = db.Joins("JOIN booking_time_slot ts ON ts.id = booking_booking.time_slot_id").
			Where("ts.date = ? AND booking_booking.status IN ?", today, domain.ActiveStatuses)
	}
	if status := c.QueryParam("status"); status != "" {
		db = db.Where("booking_booking.status = ?", status)
	}
	if user := c.QueryParam("user_id"); user != "" {
		db = db.Where("booking_booking.user_id = ?", user)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query bookings", err.Error())
	}

	var bookings []domain.Booking
	if err := db.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&bookings).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query bookings", err.Error())
	}
	return paged(c, bookings, total, page, pageSize)
}

func getBooking(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid booking ID", nil)
	}

	b, err := GetLifecycle(c).Bookings().GetByID(c.Request().Context(), id)
	if err != nil {
		return fail(c, http.StatusNotFound, "BOOKING_NOT_FOUND", "Booking not found", nil)
	}
	return ok(c, b)
}

func updateBookingStatus(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid booking ID", nil)
	}

	var payload statusPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse status parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	opr := GetOperator(c)
	updated, err := GetLifecycle(c).UpdateStatus(c.Request().Context(),
		id, domain.BookingStatus(payload.Status), opr, payload.ManagerNotes)
	if err != nil {
		return failErr(c, err)
	}

	writeOprLog(c, "booking_status",
		fmt.Sprintf("booking %d -> %s", id, payload.Status))

	if isAjax(c) {
		return ajaxOK(c, fmt.Sprintf("Booking status updated to %q", payload.Status))
	}
	return ok(c, updated)
}

// exportBookings streams the booking ledger as an xlsx workbook.
func exportBookings(c echo.Context) error {
	var bookings []domain.Booking
	db := GetDB(c).Order("created_at DESC")
	if status := c.QueryParam("status"); status != "" {
		db = db.Where("status = ?", status)
	}
	if err := db.Find(&bookings).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query bookings", err.Error())
	}

	const sheet = "Sheet1"
	f := excelize.NewFile()
	headers := []string{"ID", "User", "Service", "Time Slot", "Status", "Notes", "Manager Notes", "Created At"}
	for i, h := range headers {
		f.SetCellValue(sheet, fmt.Sprintf("%c1", 'A'+i), h)
	}
	for row, b := range bookings {
		values := []interface{}{
			b.ID, b.UserId, b.ServiceId, b.TimeSlotId, string(b.Status),
			b.Notes, b.ManagerNotes, b.CreatedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			f.SetCellValue(sheet, fmt.Sprintf("%c%d", 'A'+col, row+2), v)
		}
	}

	zap.L().Info("bookings exported", zap.Int("count", len(bookings)))
	c.Response().Header().Set(echo.HeaderContentType,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		`attachment; filename="bookings.xlsx"`)
	c.Response().WriteHeader(http.StatusOK)
	return f.Write(c.Response())
}
