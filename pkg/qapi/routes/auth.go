package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quatton/qpaper/pkg/qapi/services"
)

// WhoAmIOutput is the response for the caller lookup
type WhoAmIOutput struct {
	Body struct {
		Authenticated bool       `json:"authenticated" doc:"Whether the request carried a verified token"`
		Subject       string     `json:"subject,omitempty" doc:"Token subject"`
		ExpiresAt     *time.Time `json:"expires_at,omitempty" doc:"Token expiry"`
	}
}

func RegisterAuth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "who-am-i",
		Method:      http.MethodGet,
		Path:        "/whoami",
		Summary:     "Get the caller",
		Description: "Returns the subject of the bearer token. Without AUTH_SECRET every caller is anonymous.",
		Tags:        []string{TagHealth.String()},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *struct{}) (*WhoAmIOutput, error) {
		resp := &WhoAmIOutput{}
		if p, ok := services.PrincipalFrom(ctx); ok {
			resp.Body.Authenticated = true
			resp.Body.Subject = p.Subject
			if !p.ExpiresAt.IsZero() {
				resp.Body.ExpiresAt = &p.ExpiresAt
			}
		}
		return resp, nil
	})
}
