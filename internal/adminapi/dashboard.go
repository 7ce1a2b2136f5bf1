package adminapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mitchellh/mapstructure"
	"github.com/salonbook/salonbook/internal/booking"
	"github.com/salonbook/salonbook/internal/domain"
	"github.com/salonbook/salonbook/internal/webserver"
	"github.com/salonbook/salonbook/pkg/metrics"
	"github.com/spf13/cast"
)

// settingsPayload mirrors the tunable system settings. Callers may send any
// subset; omitted keys keep their current values.
type settingsPayload struct {
	Booking struct {
		PendingExpireMinutes int  `mapstructure:"PendingExpireMinutes" json:"PendingExpireMinutes"`
		SweepEnabled         bool `mapstructure:"SweepEnabled" json:"SweepEnabled"`
		OprLogRetentionDays  int  `mapstructure:"OprLogRetentionDays" json:"OprLogRetentionDays"`
	} `mapstructure:"booking" json:"booking"`
	Notify struct {
		EmailEnabled bool   `mapstructure:"EmailEnabled" json:"EmailEnabled"`
		WebhookURL   string `mapstructure:"WebhookURL" json:"WebhookURL"`
	} `mapstructure:"notify" json:"notify"`
	Scheduler struct {
		MaxWorkers int `mapstructure:"MaxWorkers" json:"MaxWorkers"`
	} `mapstructure:"scheduler" json:"scheduler"`
}

func registerDashboardRoutes() {
	webserver.ApiGET("/dashboard/manager", requireManager(managerDashboard))
	webserver.ApiGET("/dashboard/admin", requireAdmin(adminDashboard))
	webserver.ApiPOST("/dashboard/sweep", requireManager(triggerSweep))
	webserver.ApiGET("/settings", requireAdmin(getSettings))
	webserver.ApiPOST("/settings", requireAdmin(updateSettings))
	webserver.ApiGET("/metrics", requireAdmin(latestMetrics))
	webserver.ApiGET("/metrics/:name", requireAdmin(rangeMetrics))
}

// managerDashboard returns the counters and lists backing the manager view.
func managerDashboard(c echo.Context) error {
	ctx := c.Request().Context()
	lifecycle := GetLifecycle(c)

	pendingCount, err := lifecycle.Bookings().CountByStatus(ctx, domain.BookingPending)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to count bookings", err.Error())
	}
	confirmedCount, _ := lifecycle.Bookings().CountByStatus(ctx, domain.BookingConfirmed)

	today := booking.Midnight(time.Now())
	var todayBookings []domain.Booking
	if err := GetDB(c).
		Joins("JOIN booking_time_slot ts ON ts.id = booking_booking.time_slot_id").
		Where("ts.date = ? AND booking_booking.status IN ?", today, domain.ActiveStatuses).
		Order("ts.start_time").
		Find(&todayBookings).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query bookings", err.Error())
	}

	var pendingBookings []domain.Booking
	if err := GetDB(c).
		Where("status = ?", domain.BookingPending).
		Order("created_at").
		Limit(50).
		Find(&pendingBookings).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query bookings", err.Error())
	}

	return ok(c, map[string]interface{}{
		"pending_count":    pendingCount,
		"confirmed_count":  confirmedCount,
		"today_count":      len(todayBookings),
		"today_bookings":   todayBookings,
		"pending_bookings": pendingBookings,
	})
}

// adminDashboard returns site-wide totals and recent activity.
func adminDashboard(c echo.Context) error {
	db := GetDB(c)

	var userCount, serviceCount, bookingCount, reviewCount int64
	db.Model(&domain.SysOpr{}).Count(&userCount)
	db.Model(&domain.Service{}).Count(&serviceCount)
	db.Model(&domain.Booking{}).Count(&bookingCount)
	db.Model(&domain.Review{}).Count(&reviewCount)

	statusCounts := map[string]int64{}
	for _, status := range []domain.BookingStatus{
		domain.BookingPending, domain.BookingConfirmed,
		domain.BookingCancelled, domain.BookingCompleted,
	} {
		count, _ := GetLifecycle(c).Bookings().CountByStatus(c.Request().Context(), status)
		statusCounts[string(status)] = count
	}

	var recentBookings []domain.Booking
	db.Order("created_at DESC").Limit(10).Find(&recentBookings)

	var recentUsers []domain.SysOpr
	db.Order("created_at DESC").Limit(10).Find(&recentUsers)
	for i := range recentUsers {
		recentUsers[i].Password = ""
	}

	return ok(c, map[string]interface{}{
		"user_count":      userCount,
		"service_count":   serviceCount,
		"booking_count":   bookingCount,
		"review_count":    reviewCount,
		"status_counts":   statusCounts,
		"recent_bookings": recentBookings,
		"recent_users":    recentUsers,
	})
}

// triggerSweep runs the lifecycle sweep immediately instead of waiting for
// the scheduled run.
func triggerSweep(c echo.Context) error {
	result, err := GetLifecycle(c).Sweep(c.Request().Context())
	if err != nil {
		return failErr(c, err)
	}
	writeOprLog(c, "sweep_now", "manual sweep run")
	if isAjax(c) {
		return ajaxOK(c, "Sweep finished")
	}
	return ok(c, result)
}

func getSettings(c echo.Context) error {
	var settings []domain.SysConfig
	if err := GetDB(c).Order("type, sort").Find(&settings).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query settings", err.Error())
	}
	return ok(c, settings)
}

func updateSettings(c echo.Context) error {
	var raw map[string]interface{}
	if err := c.Bind(&raw); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse settings", nil)
	}

	cm := GetAppContext(c).ConfigMgr()

	// Start from current values so partial payloads leave the rest alone.
	var payload settingsPayload
	payload.Booking.PendingExpireMinutes = cm.GetInt("booking", "PendingExpireMinutes")
	payload.Booking.SweepEnabled = cm.GetBool("booking", "SweepEnabled")
	payload.Booking.OprLogRetentionDays = cm.GetInt("booking", "OprLogRetentionDays")
	payload.Notify.EmailEnabled = cm.GetBool("notify", "EmailEnabled")
	payload.Notify.WebhookURL = cm.GetString("notify", "WebhookURL")
	payload.Scheduler.MaxWorkers = cm.GetInt("scheduler", "MaxWorkers")

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &payload,
	})
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DECODE_ERROR", "Failed to build settings decoder", err.Error())
	}
	if err := decoder.Decode(raw); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_SETTINGS", "Unable to decode settings", err.Error())
	}

	if payload.Booking.PendingExpireMinutes < 1 {
		return fail(c, http.StatusBadRequest, "INVALID_SETTINGS", "PendingExpireMinutes must be positive", nil)
	}
	if payload.Scheduler.MaxWorkers < 1 {
		return fail(c, http.StatusBadRequest, "INVALID_SETTINGS", "MaxWorkers must be positive", nil)
	}

	writes := []struct{ typ, name, value string }{
		{"booking", "PendingExpireMinutes", cast.ToString(payload.Booking.PendingExpireMinutes)},
		{"booking", "SweepEnabled", cast.ToString(payload.Booking.SweepEnabled)},
		{"booking", "OprLogRetentionDays", cast.ToString(payload.Booking.OprLogRetentionDays)},
		{"notify", "EmailEnabled", cast.ToString(payload.Notify.EmailEnabled)},
		{"notify", "WebhookURL", payload.Notify.WebhookURL},
		{"scheduler", "MaxWorkers", cast.ToString(payload.Scheduler.MaxWorkers)},
	}
	for _, w := range writes {
		if err := cm.Set(w.typ, w.name, w.value); err != nil {
			return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to save setting "+w.name, err.Error())
		}
	}

	writeOprLog(c, "settings_update", "updated system settings")
	return ok(c, payload)
}

var dashboardMetricNames = []string{
	"booking_sweep_expired",
	"booking_sweep_completed",
	"system_cpuuse",
	"system_memuse",
	"salonbook_cpuuse",
	"salonbook_memuse",
}

func latestMetrics(c echo.Context) error {
	latest := map[string]float64{}
	for _, name := range dashboardMetricNames {
		if value, found := metrics.Latest(name); found {
			latest[name] = value
		}
	}
	return ok(c, latest)
}

func rangeMetrics(c echo.Context) error {
	name := c.Param("name")
	end := time.Now().Unix()
	start := end - 3600
	if s := c.QueryParam("start"); s != "" {
		start = cast.ToInt64(s)
	}
	if e := c.QueryParam("end"); e != "" {
		end = cast.ToInt64(e)
	}

	points, err := metrics.Range(name, start, end)
	if err != nil {
		return ok(c, []interface{}{})
	}
	return ok(c, points)
}
