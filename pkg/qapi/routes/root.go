package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/quatton/qpaper/pkg/qapi/services"
)

func RegisterAPI(api huma.API, svcs *services.Services) {
	if svcs == nil {
		svcs = services.EmptyServices()
	}
	// Middlewares only apply to operations registered after them.
	api.UseMiddleware(svcs.Auth.Middleware(api))

	RegisterHealth(api)
	RegisterAuth(api)
	RegisterProcesses(api, svcs.JobRunner)
	RegisterJobs(api, svcs.JobRunner)
}
