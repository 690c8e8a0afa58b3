package domain

import "errors"

var (
	// ErrForbidden signals the backend rejected access to a resource
	// (HTTP 403). The effect treats this as "resource gone" and clears the
	// layer's source image.
	ErrForbidden = errors.New("access to resource forbidden")

	// ErrLayerNotFound signals an unknown layer id.
	ErrLayerNotFound = errors.New("layer not found")

	// ErrPresetNotFound signals an unknown preset id.
	ErrPresetNotFound = errors.New("preset not found")

	// ErrCompletionTimeout signals the completion wait exceeded the
	// configured bound. Only possible when the timeout is enabled.
	ErrCompletionTimeout = errors.New("timed out waiting for invocation completion")
)

// ContractViolationError marks backend/frontend protocol drift: a response
// that is well-formed HTTP but breaks the agreed contract. These must
// surface loudly, never be silently swallowed. Kind is a low-cardinality
// label for metrics (e.g. "missing_batch_id").
type ContractViolationError struct {
	Kind   string
	Detail string
}

func (e *ContractViolationError) Error() string {
	return "queue contract violation: " + e.Detail
}

// IsContractViolation reports whether err is a contract violation.
func IsContractViolation(err error) bool {
	var cv *ContractViolationError
	return errors.As(err, &cv)
}
