package api

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "go-etl-pipeline/internal/api/docs"
	"go-etl-pipeline/internal/api/handler"
	"go-etl-pipeline/pkg/router"
)

func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.POST("/api/v1/runs", h.CreateRun)
	r.GET("/api/v1/runs", h.ListRuns)
	r.GET("/api/v1/runs/{id}", h.GetRun)
	r.GET("/api/v1/runs/{id}/stages", h.GetRunStages)

	r.GET("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/swagger/*", httpSwagger.WrapHandler)
}
