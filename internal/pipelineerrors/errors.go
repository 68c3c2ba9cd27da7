// Package pipelineerrors holds the sentinel errors shared across the
// orchestrator and its component registries. Callers match with errors.Is
// and wrap with fmt.Errorf("...: %w", ...), the same flat sentinel-error
// style as internal/tools/errors.go.
package pipelineerrors

import "errors"

var (
	// ErrComponentNotFound is returned when a registry lookup misses.
	ErrComponentNotFound = errors.New("component not found")

	// ErrComponentNameEmpty is returned when a component descriptor has no ID.
	ErrComponentNameEmpty = errors.New("component id cannot be empty")

	// ErrExecuteNil is returned when a component has no invocation function.
	ErrExecuteNil = errors.New("component execute function cannot be nil")

	// ErrComponentAlreadyRegistered is returned on a duplicate registration.
	ErrComponentAlreadyRegistered = errors.New("component already registered")

	// ErrUnhealthyComponent is returned when a slot fails its health check.
	ErrUnhealthyComponent = errors.New("component failed health check")

	// ErrTrustDenied is returned when a component's trust level is below the
	// policy minimum for its kind.
	ErrTrustDenied = errors.New("component trust level below policy minimum")

	// ErrStageTimeout is returned when an individual component invocation
	// exceeds its own timeout (e.g. a KB lookup).
	ErrStageTimeout = errors.New("component invocation timed out")

	// ErrStageBudgetExceeded is returned (as a warning, not a fatal error)
	// when a whole pipeline stage exhausts its sub-deadline.
	ErrStageBudgetExceeded = errors.New("stage exceeded its sub-deadline budget")

	// ErrNoHealthyCandidate is returned when no READY slot exists for a kind.
	ErrNoHealthyCandidate = errors.New("no healthy candidate available")

	// ErrCacheMiss is returned by a cache tier lookup that found nothing.
	ErrCacheMiss = errors.New("cache miss")

	// ErrNoModelsAvailable is returned when the NER ensemble has no models
	// meeting the domain profile's selection criteria.
	ErrNoModelsAvailable = errors.New("no NER models available for domain")

	// ErrCacheCorrupted is returned when a cached payload fails to decode
	// safely; callers drop the entry and fall through, they never fail the
	// request for this.
	ErrCacheCorrupted = errors.New("cache entry corrupted")

	// ErrCancelRequested is returned when a context is cancelled mid-stage;
	// callers keep whatever partial result exists and mark it cancelled.
	ErrCancelRequested = errors.New("request cancelled")

	// ErrConfigInvalid is returned by construction-time config validation.
	ErrConfigInvalid = errors.New("invalid pipeline configuration")
)
