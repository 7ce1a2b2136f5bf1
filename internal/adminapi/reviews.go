package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/salonbook/salonbook/internal/webserver"
)

type reviewPayload struct {
	BookingId int64  `json:"booking_id,string" validate:"required"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	Comment   string `json:"comment" validate:"omitempty,max=1000"`
}

func registerReviewRoutes() {
	webserver.ApiPOST("/reviews", createReview)
	webserver.ApiGET("/reviews", listMyReviews)
}

func createReview(c echo.Context) error {
	var payload reviewPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse review parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	opr := GetOperator(c)
	review, err := GetLifecycle(c).CreateReview(c.Request().Context(),
		payload.BookingId, opr.ID, payload.Rating, payload.Comment)
	if err != nil {
		return failErr(c, err)
	}

	if isAjax(c) {
		return ajaxOK(c, "Thank you for your review!")
	}
	return ok(c, review)
}

func listMyReviews(c echo.Context) error {
	opr := GetOperator(c)
	reviews, err := GetLifecycle(c).Reviews().ListByUser(c.Request().Context(), opr.ID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query reviews", err.Error())
	}
	return ok(c, reviews)
}
