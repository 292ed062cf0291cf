package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	app "github.com/mark3748/sla-notifier/cmd/api/app"
)

// Features reports capability flags dashboards use to toggle views.
func Features(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"exports":                  a.M != nil,
			"assignment_notifications": a.OptIns != nil,
			"live_feed":                a.Q != nil,
			"business_hours":           a.Resolver != nil && a.Resolver.Calendar().Enabled,
			"stats_cache":              a.Cfg.StatsCacheTTL > 0,
		})
	}
}
