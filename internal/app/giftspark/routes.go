package giftspark

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/giftspark/giftspark/docs"
	"github.com/giftspark/giftspark/internal/api/handlers/auth/changepassword"
	"github.com/giftspark/giftspark/internal/api/handlers/auth/forgotpassword"
	"github.com/giftspark/giftspark/internal/api/handlers/auth/login"
	"github.com/giftspark/giftspark/internal/api/handlers/auth/logout"
	"github.com/giftspark/giftspark/internal/api/handlers/auth/register"
	"github.com/giftspark/giftspark/internal/api/handlers/auth/resendverification"
	"github.com/giftspark/giftspark/internal/api/handlers/auth/resetpassword"
	"github.com/giftspark/giftspark/internal/api/handlers/auth/verifyemail"
	"github.com/giftspark/giftspark/internal/api/handlers/billing/cancel"
	"github.com/giftspark/giftspark/internal/api/handlers/billing/checkout"
	"github.com/giftspark/giftspark/internal/api/handlers/billing/confirm"
	"github.com/giftspark/giftspark/internal/api/handlers/gift/addmusic"
	"github.com/giftspark/giftspark/internal/api/handlers/gift/addphoto"
	giftcreate "github.com/giftspark/giftspark/internal/api/handlers/gift/create"
	planget "github.com/giftspark/giftspark/internal/api/handlers/plan/get"
	"github.com/giftspark/giftspark/internal/api/middlewarectx"
	"github.com/giftspark/giftspark/internal/lib/jwt"
	authservice "github.com/giftspark/giftspark/internal/services/auth"
	billingservice "github.com/giftspark/giftspark/internal/services/billing"
	entitlementservice "github.com/giftspark/giftspark/internal/services/entitlement"
	giftservice "github.com/giftspark/giftspark/internal/services/gift"
)

// RegisterRoutes mounts all routes of the API server.
func RegisterRoutes(r chi.Router, logger *slog.Logger, jwtMaker jwt.Maker,
	sessions middlewarectx.SessionReader, authSvc *authservice.AuthService,
	entitlementSvc *entitlementservice.EntitlementService,
	billingSvc *billingservice.BillingService, giftSvc *giftservice.GiftService) {
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Open endpoints, rate limited against credential and token guessing.
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, 10, 20))
			r.Post("/register", register.New(logger, authSvc).ServeHTTP)
			r.Post("/login", login.New(logger, authSvc).ServeHTTP)
			r.Post("/password/forgot", forgotpassword.New(logger, authSvc).ServeHTTP)
			r.Post("/password/reset", resetpassword.New(logger, authSvc).ServeHTTP)
			r.Post("/verify/resend", resendverification.New(logger, authSvc).ServeHTTP)
			r.Post("/verify/confirm", verifyemail.New(logger, authSvc).ServeHTTP)
		})

		// Endpoints behind the session credential.
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.SessionMiddleware(logger, jwtMaker, sessions))
			r.Post("/logout", logout.New(logger, authSvc).ServeHTTP)
			r.Post("/password/change", changepassword.New(logger, authSvc).ServeHTTP)
			r.Get("/plan", planget.New(logger, entitlementSvc).ServeHTTP)
			r.Post("/checkout", checkout.New(logger, billingSvc).ServeHTTP)
			r.Post("/checkout/confirm", confirm.New(logger, billingSvc).ServeHTTP)
			r.Post("/subscription/cancel", cancel.New(logger, billingSvc).ServeHTTP)
			r.Post("/gifts", giftcreate.New(logger, giftSvc).ServeHTTP)
			r.Post("/gifts/{id}/photos", addphoto.New(logger, giftSvc).ServeHTTP)
			r.Post("/gifts/{id}/music", addmusic.New(logger, giftSvc).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
