package webserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/sessions"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/salonbook/salonbook/internal/app"
	"github.com/salonbook/salonbook/internal/domain"
	"go.uber.org/zap"
)

const (
	ctxAppKey      = "appctx"
	ctxOperatorKey = "operator"
	sessionName    = "salonbook_session"
	sessionUserKey = "uid"
)

var server *WebServer

type WebServer struct {
	appCtx app.AppContext
	root   *echo.Echo
	api    *echo.Group
	pub    *echo.Group
}

type CustomValidator struct {
	validate *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validate.Struct(i)
}

// Init builds the web server around the application context. Route
// registration happens afterwards through the ApiXXX/PubXXX helpers.
func Init(appCtx app.AppContext) *WebServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = &JsoniterSerializer{}
	e.Validator = &CustomValidator{validate: validator.New()}

	e.Use(middleware.Recover())
	e.Use(session.Middleware(sessions.NewCookieStore([]byte(appCtx.Config().Web.Secret))))
	e.Use(requestLogger())

	s := &WebServer{
		appCtx: appCtx,
		root:   e,
		pub:    e.Group("/api/v1"),
	}

	api := e.Group("/api/v1")
	api.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(appCtx.Config().Web.Secret),
		Skipper:    s.sessionAuthenticated,
	}))
	api.Use(s.operatorResolver())
	s.api = api

	s.pub.Use(s.contextInjector())
	api.Use(s.contextInjector())

	server = s
	return s
}

// sessionAuthenticated skips JWT validation when the cookie session already
// carries an authenticated operator.
func (s *WebServer) sessionAuthenticated(c echo.Context) bool {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return false
	}
	_, found := sess.Values[sessionUserKey]
	return found
}

// contextInjector makes the application context reachable from handlers.
func (s *WebServer) contextInjector() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(ctxAppKey, s.appCtx)
			return next(c)
		}
	}
}

// operatorResolver loads the acting operator from the session or the verified
// JWT claims and stores it on the request context.
func (s *WebServer) operatorResolver() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var uid int64

			if sess, err := session.Get(sessionName, c); err == nil {
				if v, found := sess.Values[sessionUserKey]; found {
					if id, valid := v.(int64); valid {
						uid = id
					}
				}
			}

			if uid == 0 {
				token, valid := c.Get("user").(*jwt.Token)
				if !valid {
					return echo.NewHTTPError(http.StatusUnauthorized, "missing credentials")
				}
				claims, valid := token.Claims.(jwt.MapClaims)
				if !valid {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
				}
				switch v := claims["uid"].(type) {
				case float64:
					uid = int64(v)
				case string:
					fmt.Sscanf(v, "%d", &uid)
				}
			}

			if uid == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing credentials")
			}

			var opr domain.SysOpr
			if err := s.appCtx.DB().First(&opr, uid).Error; err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "unknown operator")
			}
			if opr.Status != "enabled" {
				return echo.NewHTTPError(http.StatusForbidden, "account disabled")
			}

			c.Set(ctxOperatorKey, &opr)
			return next(c)
		}
	}
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			zap.L().Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)))
			return err
		}
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *WebServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.appCtx.Config().Web.Host, s.appCtx.Config().Web.Port)
	zap.L().Info("web server starting", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.root.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.root.Shutdown(shutdownCtx)
	}
}

// Echo exposes the underlying router (used in handler tests).
func (s *WebServer) Echo() *echo.Echo {
	return s.root
}

// AppCtx returns the application context injected into the request.
func AppCtx(c echo.Context) app.AppContext {
	return c.Get(ctxAppKey).(app.AppContext)
}

// Operator returns the acting operator resolved by the auth middleware, or nil
// on public routes.
func Operator(c echo.Context) *domain.SysOpr {
	if opr, found := c.Get(ctxOperatorKey).(*domain.SysOpr); found {
		return opr
	}
	return nil
}

// SetSessionUser stores the operator ID in the cookie session after login.
func SetSessionUser(c echo.Context, uid int64) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Options = &sessions.Options{Path: "/", MaxAge: 86400, HttpOnly: true}
	sess.Values[sessionUserKey] = uid
	return sess.Save(c.Request(), c.Response())
}

// ClearSession drops the cookie session on logout.
func ClearSession(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Options = &sessions.Options{Path: "/", MaxAge: -1}
	delete(sess.Values, sessionUserKey)
	return sess.Save(c.Request(), c.Response())
}

// ApiGET registers an authenticated GET route.
func ApiGET(path string, h echo.HandlerFunc) {
	server.api.GET(path, h)
}

// ApiPOST registers an authenticated POST route.
func ApiPOST(path string, h echo.HandlerFunc) {
	server.api.POST(path, h)
}

// ApiPUT registers an authenticated PUT route.
func ApiPUT(path string, h echo.HandlerFunc) {
	server.api.PUT(path, h)
}

// ApiDELETE registers an authenticated DELETE route.
func ApiDELETE(path string, h echo.HandlerFunc) {
	server.api.DELETE(path, h)
}

// PubGET registers an unauthenticated GET route.
func PubGET(path string, h echo.HandlerFunc) {
	server.pub.GET(path, h)
}

// PubPOST registers an unauthenticated POST route.
func PubPOST(path string, h echo.HandlerFunc) {
	server.pub.POST(path, h)
}
