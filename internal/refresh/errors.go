package refresh

import (
	"errors"
	"fmt"

	"github.com/inelson/kubesql/internal/models"
)

// ErrRefreshInProgress is returned by RefreshOnce when another cycle holds
// the coordinator. Nothing was fetched.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// FetchError means one collection could not be retrieved, so the whole
// cycle was abandoned.
type FetchError struct {
	Resource models.ResourceKind
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DerivationError means a pod's spec and status container arrays are not
// aligned. Only that pod's container rows are skipped.
type DerivationError struct {
	PodUID     string
	Pod        string
	Containers int
	Statuses   int
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("pod %s (%s): %d containers but %d container statuses", e.Pod, e.PodUID, e.Containers, e.Statuses)
}
