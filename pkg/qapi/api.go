package qapi

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quatton/qpaper/pkg/qmetrics"
)

type Api struct {
	Api    huma.API
	Router *chi.Mux
}

// NewApi creates the HTTP host. Requests are measured when metrics is set.
func NewApi(metrics *qmetrics.Metrics) *Api {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	if metrics != nil {
		router.Use(metrics.Middleware)
	}

	config := huma.DefaultConfig("qpaper", "1.0.0")
	config.Info.Description = "Runs parameterized notebooks as Kubernetes jobs."

	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "HS256 token signed with AUTH_SECRET, see `qpaper token`",
		},
	}

	api := humachi.New(router, config)

	return &Api{Api: api, Router: router}
}
