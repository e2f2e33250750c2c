package authorization

import "context"

// Service answers whether an actor may perform action on object.
//
// Actors are "system" for scheduled work or "<role>:<name>" for API callers,
// e.g. "operator:admin".
type Service interface {
	Authorize(ctx context.Context, actor string, object string, action string) error
}
