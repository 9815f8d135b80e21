package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-tracker-api/internal/middleware"
	"github.com/noah-isme/civic-tracker-api/internal/models"
)

// Routes bundles the handlers mounted by Register.
type Routes struct {
	Auth          *AuthHandler
	Applications  *ApplicationHandler
	Resolution    *ResolutionHandler
	Notifications *NotificationHandler
	Directory     *DirectoryHandler
	Admin         *AdminHandler
	Metrics       *MetricsHandler

	Tokens     middleware.TokenValidator
	OTPLimiter *middleware.RateLimiter
}

// Register mounts probes at the root and the API under prefix.
func (rt Routes) Register(r *gin.Engine, prefix string) {
	r.GET("/health", rt.Metrics.Health)
	r.GET("/ready", rt.Metrics.Ready)
	r.GET("/metrics", rt.Metrics.Prometheus)

	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleOfficial, models.RoleAdmin)
	limited := rt.OTPLimiter.Handler()

	api := r.Group(prefix)
	api.POST("/auth/register", limited, rt.Auth.Register)
	api.POST("/auth/login", limited, rt.Auth.Login)
	api.POST("/auth/verify-otp", limited, rt.Auth.VerifyOTP)
	api.POST("/auth/token", rt.Auth.Token)
	api.POST("/auth/reset-password", rt.Auth.ResetPassword)
	api.GET("/applications/track/:trackingId", rt.Applications.Track)
	api.GET("/departments", rt.Directory.Departments)

	authed := api.Group("")
	authed.Use(middleware.JWT(rt.Tokens))

	authed.GET("/auth/me", rt.Auth.Me)
	authed.POST("/otp/generate", limited, rt.Auth.GenerateOTP)

	authed.POST("/applications", rt.Applications.Submit)
	authed.GET("/applications", staff, rt.Applications.List)
	authed.GET("/applications/my", rt.Applications.Mine)
	authed.GET("/applications/:id", rt.Applications.Get)
	authed.PATCH("/applications/:id", staff, rt.Applications.Update)
	authed.GET("/applications/:id/history", rt.Applications.History)
	authed.PATCH("/applications/:id/status", staff, rt.Applications.UpdateStatus)
	authed.POST("/applications/:id/assign", admin, rt.Applications.Assign)
	authed.POST("/applications/:id/accept", staff, rt.Applications.Accept)
	authed.GET("/applications/:id/blockchain", rt.Applications.Blockchain)
	authed.GET("/applications/:id/certificate", rt.Admin.Certificate)

	authed.POST("/applications/:id/solve", rt.Resolution.Solve)
	authed.POST("/applications/:id/feedback", rt.Resolution.SubmitFeedback)
	authed.GET("/applications/:id/feedback", rt.Resolution.Feedback)
	authed.POST("/feedback", rt.Resolution.SubmitFeedbackByBody)
	authed.GET("/officials/:id/rating", rt.Resolution.OfficialRating)

	authed.GET("/notifications", rt.Notifications.List)
	authed.POST("/notifications/:id/read", rt.Notifications.MarkRead)

	authed.POST("/departments", admin, rt.Directory.CreateDepartment)
	authed.GET("/departments/:id/officials", admin, rt.Directory.DepartmentOfficials)
	authed.POST("/warnings", admin, rt.Directory.SendWarning)
	authed.GET("/warnings", middleware.RequireRoles(models.RoleOfficial), rt.Directory.Warnings)
	authed.GET("/users/officials", admin, rt.Directory.Officials)
	authed.GET("/users/:id", rt.Directory.User)

	authed.GET("/admin/stats", admin, middleware.WithResponseMeta(), rt.Admin.Stats)
	authed.GET("/admin/applications/export", admin, rt.Admin.Export)
	authed.POST("/admin/monitor/run", admin, rt.Admin.RunMonitor)
}
