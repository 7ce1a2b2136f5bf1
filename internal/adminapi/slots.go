package adminapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
	"github.com/salonbook/salonbook/internal/booking"
	"github.com/salonbook/salonbook/internal/domain"
	"github.com/salonbook/salonbook/internal/webserver"
	"github.com/salonbook/salonbook/pkg/common"
	"go.uber.org/zap"
)

type slotPayload struct {
	ServiceId int64  `json:"service_id,string" validate:"required"`
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required,len=5"`
	EndTime   string `json:"end_time" validate:"required,len=5"`
}

type blockPayload struct {
	Date      string `json:"date" validate:"omitempty"`
	StartDate string `json:"start_date" validate:"omitempty"`
	EndDate   string `json:"end_date" validate:"omitempty"`
	StartTime string `json:"start_time" validate:"required,len=5"`
	EndTime   string `json:"end_time" validate:"required,len=5"`
	Reason    string `json:"reason" validate:"omitempty,max=500"`
}

type unblockPayload struct {
	SlotIds []int64 `json:"slot_ids" validate:"required,min=1"`
}

// slotImportRow is one CSV line of a bulk slot upload.
type slotImportRow struct {
	ServiceId int64  `csv:"service_id"`
	Date      string `csv:"date"`
	StartTime string `csv:"start_time"`
	EndTime   string `csv:"end_time"`
}

func registerSlotRoutes() {
	webserver.ApiGET("/slots", requireManager(listSlots))
	webserver.ApiPOST("/slots", requireManager(createSlot))
	webserver.ApiPOST("/slots/import", requireManager(importSlots))
	webserver.ApiGET("/slots/blocked", requireManager(listBlockedSlots))
	webserver.ApiPOST("/slots/block", requireManager(blockSlots))
	webserver.ApiPOST("/slots/unblock", requireManager(unblockSlots))
}

func listSlots(c echo.Context) error {
	page, pageSize := parsePagination(c)
	db := GetDB(c).Model(&domain.TimeSlot{})

	if service := c.QueryParam("service_id"); service != "" {
		db = db.Where("service_id = ?", service)
	}
	if date := c.QueryParam("date"); date != "" {
		parsed, err := dateparse.ParseAny(date)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse date", nil)
		}
		db = db.Where("date = ?", booking.Midnight(parsed))
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query slots", err.Error())
	}

	var slots []domain.TimeSlot
	if err := db.Order("date, start_time").Offset((page - 1) * pageSize).Limit(pageSize).Find(&slots).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query slots", err.Error())
	}
	return paged(c, slots, total, page, pageSize)
}

func createSlot(c echo.Context) error {
	var payload slotPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse slot parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	slot, err := buildSlot(c, payload.ServiceId, payload.Date, payload.StartTime, payload.EndTime)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_SLOT", err.Error(), nil)
	}
	if err := GetDB(c).Create(slot).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create slot", err.Error())
	}
	return ok(c, slot)
}

// importSlots ingests a CSV body with columns service_id,date,start_time,end_time.
// Invalid rows are skipped and reported.
func importSlots(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to read upload", nil)
	}

	var rows []slotImportRow
	if err := gocsv.UnmarshalBytes(body, &rows); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_CSV", "Unable to parse CSV", err.Error())
	}

	imported := 0
	skipped := make([]int, 0)
	for i, row := range rows {
		slot, err := buildSlot(c, row.ServiceId, row.Date, row.StartTime, row.EndTime)
		if err != nil {
			skipped = append(skipped, i+1)
			continue
		}
		if err := GetDB(c).Create(slot).Error; err != nil {
			zap.L().Error("slot import row failed", zap.Int("row", i+1), zap.Error(err))
			skipped = append(skipped, i+1)
			continue
		}
		imported++
	}

	writeOprLog(c, "slots_import", fmt.Sprintf("imported %d slots", imported))
	return ok(c, map[string]interface{}{
		"imported": imported,
		"skipped":  skipped,
	})
}

func buildSlot(c echo.Context, serviceID int64, date, startTime, endTime string) (*domain.TimeSlot, error) {
	var svc domain.Service
	if err := GetDB(c).First(&svc, serviceID).Error; err != nil {
		return nil, fmt.Errorf("unknown service %d", serviceID)
	}
	parsed, err := dateparse.ParseAny(date)
	if err != nil {
		return nil, fmt.Errorf("unable to parse date %q", date)
	}
	if startTime >= endTime {
		return nil, fmt.Errorf("start time %s not before end time %s", startTime, endTime)
	}
	return &domain.TimeSlot{
		ID:        common.UUIDint64(),
		ServiceId: serviceID,
		Date:      booking.Midnight(parsed),
		StartTime: startTime,
		EndTime:   endTime,
		Available: true,
	}, nil
}

// listBlockedSlots returns future blocked slots grouped by date.
func listBlockedSlots(c echo.Context) error {
	slots, err := GetLifecycle(c).Slots().ListBlocked(c.Request().Context(), time.Now())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query blocked slots", err.Error())
	}

	byDate := map[string][]domain.TimeSlot{}
	for _, slot := range slots {
		key := slot.Date.Format("2006-01-02")
		byDate[key] = append(byDate[key], slot)
	}
	return ok(c, map[string]interface{}{
		"blocked_slots":   slots,
		"blocked_by_date": byDate,
	})
}

// blockSlots blocks every slot in a single date or inclusive date range,
// limited to the given time band.
func blockSlots(c echo.Context) error {
	var payload blockPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse block parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	startDate := payload.StartDate
	endDate := payload.EndDate
	if payload.Date != "" {
		startDate, endDate = payload.Date, payload.Date
	}
	if startDate == "" || endDate == "" {
		return fail(c, http.StatusBadRequest, "INVALID_RANGE", "A date or a start/end date range is required", nil)
	}

	from, err := dateparse.ParseAny(startDate)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse start date", nil)
	}
	to, err := dateparse.ParseAny(endDate)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse end date", nil)
	}

	count, err := GetLifecycle(c).BlockSlots(c.Request().Context(),
		from, to, payload.StartTime, payload.EndTime, payload.Reason)
	if err != nil {
		return failErr(c, err)
	}

	writeOprLog(c, "slots_block",
		fmt.Sprintf("blocked %d slots %s..%s", count, startDate, endDate))

	if isAjax(c) {
		return ajaxOK(c, fmt.Sprintf("Blocked %d time slots. %s", count, payload.Reason))
	}
	return ok(c, map[string]interface{}{"blocked": count})
}

func unblockSlots(c echo.Context) error {
	var payload unblockPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse unblock parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	count, err := GetLifecycle(c).UnblockSlots(c.Request().Context(), payload.SlotIds)
	if err != nil {
		return failErr(c, err)
	}

	writeOprLog(c, "slots_unblock", fmt.Sprintf("unblocked %d slots", count))

	if isAjax(c) {
		return ajaxOK(c, fmt.Sprintf("Unblocked %d time slots.", count))
	}
	return ok(c, map[string]interface{}{"unblocked": count})
}
