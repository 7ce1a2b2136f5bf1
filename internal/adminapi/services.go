package adminapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/montanaflynn/stats"
	"github.com/salonbook/salonbook/internal/domain"
	"github.com/salonbook/salonbook/internal/webserver"
	"github.com/salonbook/salonbook/pkg/common"
)

type categoryPayload struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

type servicePayload struct {
	CategoryId  int64   `json:"category_id,string" validate:"required"`
	Name        string  `json:"name" validate:"required,min=2,max=100"`
	Description string  `json:"description" validate:"omitempty,max=1000"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Duration    int     `json:"duration" validate:"required,gt=0"`
}

func registerCatalogRoutes() {
	webserver.PubGET("/categories", listCategories)
	webserver.ApiPOST("/categories", requireAdmin(createCategory))
	webserver.ApiDELETE("/categories/:id", requireAdmin(deleteCategory))
	webserver.PubGET("/services", listServices)
	webserver.PubGET("/services/:id", getService)
	webserver.ApiPOST("/services", requireAdmin(createService))
	webserver.ApiPUT("/services/:id", requireAdmin(updateService))
	webserver.ApiDELETE("/services/:id", requireAdmin(deleteService))
}

func listCategories(c echo.Context) error {
	var categories []domain.Category
	if err := GetDB(c).Order("name").Find(&categories).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query categories", err.Error())
	}
	return ok(c, categories)
}

func createCategory(c echo.Context) error {
	var payload categoryPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse category parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	category := domain.Category{
		ID:          common.UUIDint64(),
		Name:        payload.Name,
		Description: payload.Description,
	}
	if err := GetDB(c).Create(&category).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create category", err.Error())
	}
	writeOprLog(c, "category_create", "created category "+payload.Name)
	return ok(c, category)
}

func deleteCategory(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid category id", nil)
	}

	var count int64
	GetDB(c).Model(&domain.Service{}).Where("category_id = ?", id).Count(&count)
	if count > 0 {
		return fail(c, http.StatusConflict, "CONFLICT", "Category still has services", nil)
	}

	if err := GetDB(c).Delete(&domain.Category{}, id).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete category", err.Error())
	}
	writeOprLog(c, "category_delete", "deleted category "+strconv.FormatInt(id, 10))
	return ok(c, nil)
}

// listServices searches the catalog by keyword, category and price range.
func listServices(c echo.Context) error {
	page, pageSize := parsePagination(c)
	db := GetDB(c).Model(&domain.Service{})

	if keyword := c.QueryParam("q"); keyword != "" {
		like := "%" + keyword + "%"
		if GetAppContext(c).Config().Database.Type == "postgres" {
			db = db.Where("name ILIKE ? OR description ILIKE ?", like, like)
		} else {
			db = db.Where("LOWER(name) LIKE LOWER(?) OR LOWER(description) LIKE LOWER(?)", like, like)
		}
	}
	if category := c.QueryParam("category_id"); category != "" {
		db = db.Where("category_id = ?", category)
	}
	if minPrice := c.QueryParam("min_price"); minPrice != "" {
		db = db.Where("price >= ?", minPrice)
	}
	if maxPrice := c.QueryParam("max_price"); maxPrice != "" {
		db = db.Where("price <= ?", maxPrice)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query services", err.Error())
	}

	var services []domain.Service
	if err := db.Order("name").Offset((page - 1) * pageSize).Limit(pageSize).Find(&services).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query services", err.Error())
	}
	return paged(c, services, total, page, pageSize)
}

// getService returns a service with its upcoming usable slots and rating
// summary.
func getService(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid service id", nil)
	}

	var svc domain.Service
	if err := GetDB(c).First(&svc, id).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Service not found", nil)
	}

	lifecycle := GetLifecycle(c)
	slots, err := lifecycle.Slots().ListUsable(c.Request().Context(), id, time.Now())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query slots", err.Error())
	}

	ratings, err := lifecycle.Reviews().ServiceRatings(c.Request().Context(), id)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query ratings", err.Error())
	}
	avgRating := 0.0
	if len(ratings) > 0 {
		avgRating, _ = stats.Mean(ratings)
		avgRating, _ = stats.Round(avgRating, 1)
	}

	return ok(c, map[string]interface{}{
		"service":      svc,
		"slots":        slots,
		"avg_rating":   avgRating,
		"review_count": len(ratings),
	})
}

func createService(c echo.Context) error {
	var payload servicePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse service parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	var category domain.Category
	if err := GetDB(c).First(&category, payload.CategoryId).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Category not found", nil)
	}

	svc := domain.Service{
		ID:          common.UUIDint64(),
		CategoryId:  payload.CategoryId,
		Name:        payload.Name,
		Description: payload.Description,
		Price:       payload.Price,
		Duration:    payload.Duration,
	}
	if err := GetDB(c).Create(&svc).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create service", err.Error())
	}
	writeOprLog(c, "service_create", "created service "+payload.Name)
	return ok(c, svc)
}

func updateService(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid service id", nil)
	}

	var payload servicePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse service parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	var svc domain.Service
	if err := GetDB(c).First(&svc, id).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Service not found", nil)
	}

	updates := map[string]interface{}{
		"category_id": payload.CategoryId,
		"name":        payload.Name,
		"description": payload.Description,
		"price":       payload.Price,
		"duration":    payload.Duration,
	}
	if err := GetDB(c).Model(&svc).Updates(updates).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update service", err.Error())
	}
	writeOprLog(c, "service_update", "updated service "+strconv.FormatInt(id, 10))
	return ok(c, svc)
}

func deleteService(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid service id", nil)
	}

	var count int64
	GetDB(c).Model(&domain.Booking{}).
		Where("service_id = ? AND status IN ?", id, domain.ActiveStatuses).Count(&count)
	if count > 0 {
		return fail(c, http.StatusConflict, "CONFLICT", "Service still has active bookings", nil)
	}

	db := GetDB(c)
	if err := db.Where("service_id = ?", id).Delete(&domain.TimeSlot{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete slots", err.Error())
	}
	if err := db.Delete(&domain.Service{}, id).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete service", err.Error())
	}
	writeOprLog(c, "service_delete", "deleted service "+strconv.FormatInt(id, 10))
	return ok(c, nil)
}
