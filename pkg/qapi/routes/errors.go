package routes

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quatton/qpaper/pkg/qerr"
)

// apiError turns a qerr kind into the matching HTTP status.
func apiError(err error) error {
	var e *qerr.Error
	if errors.As(err, &e) && e.JobID != "" {
		return huma.NewError(qerr.HTTPStatus(err), err.Error(), &huma.ErrorDetail{Location: "job", Value: e.JobID})
	}
	return huma.NewError(qerr.HTTPStatus(err), err.Error())
}

func errNoRunner() error {
	return huma.Error503ServiceUnavailable("no job runner configured")
}
