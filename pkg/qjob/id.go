package qjob

import (
	"strings"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/quatton/qpaper/pkg/qerr"
)

// NewID returns a fresh job id. UUIDs are valid DNS labels, so the id can be
// used as the workload name directly.
func NewID() string {
	return uuid.NewString()
}

// ValidateID checks that a caller supplied id can name a cluster workload.
func ValidateID(id string) error {
	if id == "" {
		return qerr.Validation("job id must not be empty")
	}
	if errs := validation.IsDNS1123Label(id); len(errs) > 0 {
		return qerr.Validation("invalid job id %q: %s", id, strings.Join(errs, "; "))
	}
	return nil
}
