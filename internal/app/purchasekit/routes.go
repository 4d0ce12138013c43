// Package purchasekit собирает сервис покупок: HTTP API, gRPC проверку здоровья и контроллер покупок.
package purchasekit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/purchasekit/internal/http/handlers/admin/login"
	"github.com/magabrotheeeer/purchasekit/internal/http/handlers/admin/override"
	"github.com/magabrotheeeer/purchasekit/internal/http/handlers/admin/transactions"
	"github.com/magabrotheeeer/purchasekit/internal/http/handlers/catalog/features"
	"github.com/magabrotheeeer/purchasekit/internal/http/handlers/catalog/products"
	"github.com/magabrotheeeer/purchasekit/internal/http/handlers/catalog/tiers"
	"github.com/magabrotheeeer/purchasekit/internal/http/handlers/health"
	"github.com/magabrotheeeer/purchasekit/internal/http/handlers/notification/appstore"
	"github.com/magabrotheeeer/purchasekit/internal/http/handlers/purchase"
	stateget "github.com/magabrotheeeer/purchasekit/internal/http/handlers/state/get"
	"github.com/magabrotheeeer/purchasekit/internal/http/handlers/state/legacy"
	"github.com/magabrotheeeer/purchasekit/internal/http/middlewarectx"
	"github.com/magabrotheeeer/purchasekit/internal/kit"
	"github.com/magabrotheeeer/purchasekit/internal/lib/jwt"
	"github.com/magabrotheeeer/purchasekit/internal/store"
)

// RouteDeps — зависимости обработчиков.
type RouteDeps struct {
	Kit       *kit.Kit
	Verifier  appstore.Verifier
	Publisher store.Publisher
	Auth      login.Service
	Tokens    middlewarectx.TokenParser
	Ledger    transactions.Service // nil, если журнал не настроен
	Metrics   http.Handler
	RateLimit float64
	RateBurst int
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, deps RouteDeps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/tiers", tiers.New(logger, deps.Kit).ServeHTTP)
		r.Get("/features", features.New(logger, deps.Kit).ServeHTTP)
		r.Get("/products", products.New(logger, deps.Kit).ServeHTTP)
		r.Get("/state", stateget.New(logger, deps.Kit).ServeHTTP)
		r.Get("/legacy", legacy.New(logger, deps.Kit).ServeHTTP)

		// Покупки ограничены по частоте
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, deps.RateLimit, deps.RateBurst))
			r.Post("/purchases", purchase.NewTier(logger, deps.Kit).ServeHTTP)
			r.Post("/tips", purchase.NewTip(logger, deps.Kit).ServeHTTP)
		})

		// Уведомления App Store (без аутентификации, подпись проверяется обработчиком)
		if deps.Verifier != nil && deps.Publisher != nil {
			r.Post("/notifications/appstore", appstore.New(logger, deps.Verifier, deps.Publisher).ServeHTTP)
		}

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", login.New(logger, deps.Auth).ServeHTTP)

			// Группа с JWT аутентификацией
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.JWTMiddleware(deps.Tokens, jwt.RoleAdmin, logger))
				ov := override.New(logger, deps.Kit)
				r.Get("/override", ov.Get)
				r.Put("/override", ov.Put)
				if deps.Ledger != nil {
					r.Get("/transactions", transactions.New(logger, deps.Ledger).ServeHTTP)
				}
			})
		})
	})

	r.Get("/health", health.New(logger, deps.Kit).ServeHTTP)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
