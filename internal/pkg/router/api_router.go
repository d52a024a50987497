package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/learnerfast/learnerfast/app/controllers"
	"github.com/learnerfast/learnerfast/internal/pkg/middleware"
)

const callbackPath = "/api/payment/callback"

// Deps are the collaborators the API routes need.
type Deps struct {
	Handlers    *controllers.Handlers
	JWTSecret   string
	CORSOrigins string
	// LimiterStorage is shared by all instances; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	RateLimit      int
}

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	max := h.deps.RateLimit
	if max <= 0 {
		max = 120
	}
	origins := h.deps.CORSOrigins
	if origins == "" {
		origins = "*"
	}

	api := app.Group("/api",
		cors.New(cors.Config{
			AllowOrigins: origins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
			AllowMethods: "GET,POST,DELETE,OPTIONS",
		}),
		limiter.New(limiter.Config{
			Max:        max,
			Expiration: time.Minute,
			Storage:    h.deps.LimiterStorage,
			// Gateway callbacks come from a handful of IPs and must not be throttled.
			Next: func(c *fiber.Ctx) bool {
				return c.Path() == callbackPath
			},
		}),
		middleware.Authenticate(h.deps.JWTSecret),
	)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	hd := h.deps.Handlers

	api.Get("/courses/by-website", hd.HandleCoursesByWebsite)

	payment := api.Group("/payment")
	payment.Post("/initiate", hd.HandlePaymentInitiate)
	payment.Post("/callback", hd.HandlePaymentCallback)
	payment.Get("/status", hd.HandlePaymentStatus)
	payment.Post("/razorpay/create-order", hd.HandleRazorpayCreateOrder)
	payment.Post("/razorpay/verify", hd.HandleRazorpayVerify)

	domains := api.Group("/domains", middleware.RequireAuth)
	domains.Post("/", hd.HandleAddDomain)
	domains.Get("/", hd.HandleListDomains)
	domains.Delete("/", hd.HandleDeleteDomain)
	domains.Post("/verify", hd.HandleVerifyDomain)

	enrollments := api.Group("/enrollments", middleware.RequireAuth)
	enrollments.Post("/free", hd.HandleFreeEnrollment)
	enrollments.Get("/access", hd.HandleEnrollmentAccess)
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}
