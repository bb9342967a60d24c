// Package server assembles the HTTP router: middleware, documentation and
// every API route.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "pennywise/internal/docs" // swagger docs
	"pennywise/internal/handlers"
	"pennywise/internal/middleware"
	"pennywise/internal/period"
	"pennywise/internal/services"
)

// Services are the domain services the routes delegate to.
type Services struct {
	Users         services.UserServicer
	Accounts      services.AccountServicer
	Categories    services.CategoryServicer
	Transactions  services.TransactionServicer
	Budgets       services.BudgetServicer
	Subscriptions services.SubscriptionServicer
	Stats         services.StatsServicer
}

// Options tune the router.
type Options struct {
	AllowedOrigins []string
	// PipelineAPIKey guards /pipeline; empty disables those routes.
	PipelineAPIKey string
	Jobs           handlers.JobRunner
	// Clock supplies "today" for requests that omit a date.
	Clock          period.Clock
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(svc Services, opts Options) *gin.Engine {
	accountHandler := handlers.NewAccountHandler(svc.Accounts)
	categoryHandler := handlers.NewCategoryHandler(svc.Categories)
	transactionHandler := handlers.NewTransactionHandler(svc.Transactions)
	budgetHandler := handlers.NewBudgetHandler(svc.Budgets, opts.Clock)
	subscriptionHandler := handlers.NewSubscriptionHandler(svc.Subscriptions)
	statsHandler := handlers.NewStatsHandler(svc.Stats, opts.Clock)
	profileHandler := handlers.NewProfileHandler(svc.Users)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	if len(opts.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     opts.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Pipeline routes authenticate with an API key instead of a user token.
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(opts.PipelineAPIKey))
	if opts.Jobs != nil {
		pipeline.POST("/jobs/:name", handlers.NewJobsHandler(opts.Jobs, opts.Clock).RunJob)
	}

	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(), middleware.ProvisionUser(svc.Users))

	protected.GET("/profile", profileHandler.GetProfile)
	protected.PUT("/profile", profileHandler.UpdateProfile)
	protected.GET("/dashboard", statsHandler.GetDashboard)
	protected.GET("/stats", statsHandler.GetMonthlyStats)

	accounts := protected.Group("/accounts")
	accounts.POST("", accountHandler.CreateAccount)
	accounts.GET("", accountHandler.GetUserAccounts)
	accounts.GET("/:id", accountHandler.GetAccountByID)
	accounts.PUT("/:id", accountHandler.UpdateAccount)
	accounts.GET("/:id/transactions", transactionHandler.GetAccountTransactions)

	transactions := protected.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("", transactionHandler.GetUserTransactions)
	transactions.GET("/:id", transactionHandler.GetTransactionByID)
	transactions.PUT("/:id", transactionHandler.UpdateTransaction)
	transactions.DELETE("/:id", transactionHandler.DeleteTransaction)

	categories := protected.Group("/categories")
	categories.POST("", categoryHandler.CreateCategory)
	categories.GET("", categoryHandler.GetUserCategories)
	categories.GET("/:id", categoryHandler.GetCategoryByID)
	categories.PUT("/:id", categoryHandler.UpdateCategory)
	categories.DELETE("/:id", categoryHandler.DeleteCategory)

	budgets := protected.Group("/budgets")
	budgets.POST("", budgetHandler.CreateBudget)
	budgets.GET("", budgetHandler.GetBudgets)
	budgets.GET("/:id", budgetHandler.GetBudget)
	budgets.PUT("/:id", budgetHandler.UpdateBudget)
	budgets.DELETE("/:id", budgetHandler.DeleteBudget)
	budgets.GET("/:id/progress", budgetHandler.GetBudgetProgress)
	budgets.GET("/:id/allocations", budgetHandler.GetBudgetAllocations)
	budgets.POST("/:id/allocations", budgetHandler.AllocateBudget)

	subscriptions := protected.Group("/subscriptions")
	subscriptions.POST("", subscriptionHandler.CreateSubscription)
	subscriptions.GET("", subscriptionHandler.GetSubscriptions)
	subscriptions.GET("/:id", subscriptionHandler.GetSubscription)
	subscriptions.PUT("/:id", subscriptionHandler.UpdateSubscription)
	subscriptions.DELETE("/:id", subscriptionHandler.DeleteSubscription)

	return router
}
