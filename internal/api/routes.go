package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func SetupRoutes(router *gin.Engine, session FeedService, origins []string, logger *logrus.Logger) {
	handler := NewHandler(session, logger)

	corsConfig := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	api := router.Group("/api")
	{
		api.GET("/feed", handler.GetFeed)
		api.GET("/feed/more", handler.GetMore)
		api.POST("/feed/refresh", handler.RefreshFeed)
		api.GET("/filters", handler.GetFilters)

		api.GET("/cities", handler.GetCities)
		api.GET("/location", handler.GetLocation)
		api.POST("/location/resolve", handler.ResolveLocation)
		api.PUT("/location", handler.SetLocation)
		api.DELETE("/location", handler.ClearLocation)

		api.GET("/suggestions", handler.GetSuggestions)
		api.POST("/suggestions/select", handler.SelectSuggestion)

		api.POST("/interest/:id", handler.ToggleInterest)
		api.GET("/wishlist", handler.GetWishlist)
		api.GET("/profile", handler.GetProfile)
		api.POST("/logout", handler.Logout)
	}
}
