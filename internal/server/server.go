package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shinyyama/fleamarket-backend/internal/directory"
	"github.com/shinyyama/fleamarket-backend/internal/handler"
	appmw "github.com/shinyyama/fleamarket-backend/internal/middleware"
	"github.com/shinyyama/fleamarket-backend/internal/service"
	"github.com/shinyyama/fleamarket-backend/internal/storage"
)

// Deps are the wired services. Optional ones switch their routes off when nil.
type Deps struct {
	Listings  service.ListingService
	Lifecycle service.LifecycleService
	// Identity sets uid (and name when known) on the echo context.
	Identity  echo.MiddlewareFunc
	AdminUIDs []string
	// WriteRatePerMin caps state-changing requests per caller. Zero disables it.
	WriteRatePerMin int

	Notifications service.NotificationService
	Images        storage.ImageStore
	Directory     directory.Directory

	GitSHA    string
	BuildTime string
}

type Server struct {
	e *echo.Echo
}

func allowOrigin(origin string) (bool, error) {
	low := strings.ToLower(origin)
	if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
		strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
		return true, nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false, nil
	}
	if u.Scheme != "https" {
		return false, nil
	}
	return strings.HasSuffix(u.Hostname(), "vercel.app"), nil
}

func New(d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(appmw.RequestContext)
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", appmw.HeaderUserID, appmw.HeaderUserName},
		ExposeHeaders:    []string{echo.HeaderXRequestID, "Retry-After"},
		AllowCredentials: true,
		AllowOriginFunc:  allowOrigin,
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    d.GitSHA,
			"build_time": d.BuildTime,
		})
	})

	auth := d.Identity
	if auth == nil {
		auth = appmw.HeaderIdentity
	}
	write := []echo.MiddlewareFunc{auth}
	if d.WriteRatePerMin > 0 {
		write = append(write, appmw.NewWriteLimiter(d.WriteRatePerMin).Middleware)
	}
	listingHandler := handler.NewListingHandler(d.Listings, d.Lifecycle)
	purchaseHandler := handler.NewPurchaseHandler(d.Lifecycle)

	api := e.Group("/api")
	api.GET("/listings", listingHandler.Browse)
	api.GET("/listings/:id", listingHandler.Get)
	api.POST("/listings", listingHandler.Create, write...)
	api.PATCH("/listings/:id", listingHandler.Edit, write...)
	api.POST("/listings/:id/withdraw", listingHandler.Withdraw, write...)
	api.POST("/listings/:id/restore", listingHandler.Restore, write...)
	api.GET("/me/listings", listingHandler.MyListings, auth)
	api.GET("/me/purchases", listingHandler.MyPurchases, auth)

	api.POST("/listings/:id/claim", purchaseHandler.Claim, write...)
	api.POST("/listings/:id/payment", purchaseHandler.ReportPayment, write...)
	api.POST("/listings/:id/paid", purchaseHandler.MarkPaid, auth, appmw.RequireAdmin(d.AdminUIDs))

	if d.Images != nil {
		api.POST("/images", handler.NewImageHandler(d.Images).Upload, write...)
	}
	if d.Notifications != nil {
		notificationHandler := handler.NewNotificationHandler(d.Notifications)
		api.GET("/notifications", notificationHandler.List, auth)
		api.POST("/notifications/read", notificationHandler.MarkRead, auth)
	}
	if d.Directory != nil {
		api.GET("/users/:uid/public", handler.NewUserHandler(d.Directory).GetPublic)
	}

	return &Server{e: e}
}

func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
