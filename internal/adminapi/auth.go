package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/salonbook/salonbook/internal/domain"
	"github.com/salonbook/salonbook/internal/webserver"
	"github.com/salonbook/salonbook/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type loginPayload struct {
	Username string `json:"username" validate:"required,min=1,max=100"`
	Password string `json:"password" validate:"required,min=1,max=100"`
}

type registerPayload struct {
	Username string `json:"username" validate:"required,min=2,max=100"`
	Password string `json:"password" validate:"required,min=6,max=100"`
	Realname string `json:"realname" validate:"omitempty,max=200"`
	Email    string `json:"email" validate:"omitempty,email"`
	Mobile   string `json:"mobile" validate:"omitempty,max=30"`
}

func registerAuthRoutes() {
	webserver.PubPOST("/auth/login", login)
	webserver.PubPOST("/auth/register", register)
	webserver.ApiPOST("/auth/logout", logout)
	webserver.ApiGET("/auth/profile", profile)
}

func login(c echo.Context) error {
	var payload loginPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse login parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	var opr domain.SysOpr
	err := GetDB(c).Where("username = ?", strings.TrimSpace(payload.Username)).First(&opr).Error
	if err != nil || opr.Password != common.Sha256HashWithSalt(payload.Password, common.GetSecretSalt()) {
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Username or password incorrect", nil)
	}
	if opr.Status != common.ENABLED {
		return fail(c, http.StatusForbidden, "ACCOUNT_DISABLED", "Account disabled", nil)
	}

	cfg := GetAppContext(c).Config()
	expire := time.Duration(cfg.Web.JwtExpire) * time.Hour
	if expire <= 0 {
		expire = 24 * time.Hour
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":      opr.ID,
		"username": opr.Username,
		"level":    opr.Level,
		"exp":      time.Now().Add(expire).Unix(),
	})
	signed, err := token.SignedString([]byte(cfg.Web.Secret))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "TOKEN_ERROR", "Failed to sign token", nil)
	}

	if err := webserver.SetSessionUser(c, opr.ID); err != nil {
		zap.L().Warn("session save failed", zap.Error(err))
	}

	GetDB(c).Model(&domain.SysOpr{}).Where("id = ?", opr.ID).Update("last_login", time.Now())

	zap.L().Info("operator login", zap.String("username", opr.Username), zap.String("ip", c.RealIP()))
	return ok(c, map[string]interface{}{
		"token":    signed,
		"username": opr.Username,
		"level":    opr.Level,
	})
}

func logout(c echo.Context) error {
	_ = webserver.ClearSession(c)
	return ok(c, nil)
}

func register(c echo.Context) error {
	var payload registerPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse registration parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	username := strings.TrimSpace(payload.Username)
	var exists int64
	GetDB(c).Model(&domain.SysOpr{}).Where("username = ?", username).Count(&exists)
	if exists > 0 {
		return fail(c, http.StatusConflict, "USERNAME_TAKEN", "Username already registered", nil)
	}

	opr := domain.SysOpr{
		ID:       common.UUIDint64(),
		Username: username,
		Password: common.Sha256HashWithSalt(payload.Password, common.GetSecretSalt()),
		Realname: payload.Realname,
		Email:    payload.Email,
		Mobile:   payload.Mobile,
		Level:    domain.LevelUser,
		Status:   common.ENABLED,
	}
	if err := GetDB(c).Create(&opr).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create account", err.Error())
	}

	zap.L().Info("account registered", zap.String("username", username))
	return ok(c, opr)
}

// profile returns the operator's account and bookings; AJAX callers get the
// bookings list alone for partial refresh.
func profile(c echo.Context) error {
	opr := GetOperator(c)

	bookings, err := GetLifecycle(c).Bookings().ListByUser(c.Request().Context(), opr.ID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query bookings", err.Error())
	}

	if isAjax(c) {
		return ok(c, bookings)
	}
	return ok(c, map[string]interface{}{
		"account":  opr,
		"bookings": bookings,
	})
}
