package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/travoya/travoya/api"
	"github.com/travoya/travoya/config"
	"github.com/travoya/travoya/internal/service/auth"
)

// Handlers carries the route groups mounted on the router.
type Handlers struct {
	Auth     *api.AuthHandler
	Search   *api.SearchHandler
	Bookings *api.BookingHandler
	Catalog  *api.CatalogHandler
	Payments *api.PaymentHandler
	AuthSvc  auth.AuthUseCase
}

// Run starts the HTTP server and blocks until the context is canceled or
// the server fails.
func Run(ctx context.Context, cfg *config.Config, h Handlers) error {
	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: NewRouter(cfg, h),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

// NewRouter builds the gin engine with all route groups mounted.
func NewRouter(cfg *config.Config, h Handlers) *gin.Engine {
	if cfg.HTTP.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(cfg.HTTP.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.HTTP.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	router.Use(cors.New(corsCfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	h.Auth.Register(v1.Group("/auth"))
	h.Search.Register(v1.Group("/search"))
	h.Catalog.Register(v1.Group("/catalog"))
	h.Payments.Register(v1.Group("/payments"))
	h.Bookings.RegisterGuest(v1.Group("/guest/bookings"))

	authed := v1.Group("", api.RequireAuth(h.AuthSvc))
	h.Bookings.Register(authed.Group("/bookings"))
	h.Catalog.RegisterCart(authed.Group("/carts"))

	admin := authed.Group("/admin", api.RequireAdmin())
	h.Catalog.RegisterAdmin(admin)

	return router
}
