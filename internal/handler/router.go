package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agromarket-api/internal/middleware"
	"github.com/noah-isme/agromarket-api/internal/models"
)

// Handlers groups every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth         *AuthHandler
	Users        *UserHandler
	Products     *ProductHandler
	Cooperatives *CooperativeHandler
	Forums       *ForumHandler
	Metrics      *MetricsHandler
	Images       *ImageHandler
}

// RegisterRoutes mounts the API on api. tokens validates bearer tokens and
// pinger records activity of authenticated callers.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, tokens middleware.TokenValidator, pinger middleware.Pinger) {
	auth := api.Group("/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)

	if h.Images != nil {
		api.GET("/images/:token", h.Images.Download)
	}
	api.GET("/products", h.Products.Market)
	api.GET("/products/:id", h.Products.Get)
	api.GET("/cooperatives", h.Cooperatives.List)
	api.GET("/cooperatives/:id", h.Cooperatives.Get)
	api.GET("/forums", h.Forums.ListForums)
	api.GET("/forums/:id/posts", h.Forums.ListPosts)

	secured := api.Group("")
	secured.Use(middleware.JWT(tokens), middleware.LastSeen(pinger))

	secured.POST("/auth/logout", h.Auth.Logout)
	secured.POST("/auth/change-password", h.Auth.ChangePassword)

	secured.GET("/me", h.Users.Me)
	secured.PATCH("/me", h.Users.UpdateMe)
	secured.GET("/me/products", h.Products.Mine)
	secured.GET("/me/statement", h.Products.Statement)
	secured.POST("/me/farmers", middleware.RequirePermission(models.PermRegister), h.Users.Manage)
	secured.GET("/users/:id", h.Users.Get)
	secured.GET("/users/:id/farmers", h.Users.Farmers)
	secured.GET("/users/:id/agents", h.Users.Agents)
	secured.PUT("/users/:id/role", middleware.RequireAdministrator(), h.Users.AssignRole)

	secured.POST("/products", middleware.RequirePermission(models.PermWrite), h.Products.Create)
	secured.PATCH("/products/:id", h.Products.Update)
	secured.PUT("/products/:id/image", h.Products.UploadImage)
	secured.DELETE("/products/:id", middleware.RequireAdministrator(), h.Products.Delete)
	secured.POST("/products/:id/purchase", h.Products.Purchase)
	secured.POST("/products/:id/sell", h.Products.Sell)

	secured.POST("/cooperatives", h.Cooperatives.Create)
	secured.POST("/cooperatives/:id/join", h.Cooperatives.Join)
	secured.GET("/cooperatives/:id/members", h.Cooperatives.Members)

	secured.POST("/forums", middleware.RequireAdministrator(), h.Forums.CreateForum)
	secured.POST("/forums/:id/posts", middleware.RequirePermission(models.PermWrite), h.Forums.CreatePost)
	secured.GET("/posts/:id/comments", h.Forums.ListComments)
	secured.POST("/posts/:id/comments", middleware.RequirePermission(models.PermComment), h.Forums.CreateComment)
	secured.PUT("/comments/:id/disabled", middleware.RequirePermission(models.PermModerate), h.Forums.SetCommentDisabled)

	secured.GET("/metrics/summary", middleware.RequireAdministrator(), h.Metrics.Snapshot)
}
