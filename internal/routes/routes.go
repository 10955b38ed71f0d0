package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/khangpv/imgprep/internal/handlers"
	"github.com/khangpv/imgprep/internal/middleware"
	"go.uber.org/zap"
)

type Router struct {
	imageHandler *handlers.ImageHandler
	logger       *zap.Logger
}

func NewRouter(
	imageHandler *handlers.ImageHandler,
	logger *zap.Logger,
) *Router {
	return &Router{
		imageHandler: imageHandler,
		logger:       logger,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger(r.logger))
	router.Use(middleware.ErrorHandler(r.logger))
	router.Use(middleware.CORS())
	router.Use(middleware.SecurityHeaders())

	// API version 1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", r.imageHandler.HealthCheck)

		images := v1.Group("/images")
		{
			images.POST("/resize", r.imageHandler.ResizeImage)
			images.POST("/jobs", r.imageHandler.EnqueueJob)
		}
	}

	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":  "OK",
			"message": "imgprep is running",
		})
	})

	return router
}
