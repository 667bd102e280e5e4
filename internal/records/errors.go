package records

import (
	"errors"

	svcerrors "github.com/elghella/marketplace/internal/errors"
)

// ToServiceError maps data layer errors onto the service error taxonomy.
// Errors that already are service errors pass through unchanged.
func ToServiceError(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	if svcerrors.GetServiceError(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return svcerrors.NotFound(resource, id)
	case errors.Is(err, ErrInvalidInput):
		return svcerrors.BadRequest(err.Error())
	case errors.Is(err, ErrConflict):
		return svcerrors.Conflict(resource + " already exists")
	case errors.Is(err, ErrForbidden):
		return svcerrors.Forbidden("operation not permitted")
	default:
		return svcerrors.Database(resource, err)
	}
}
