package errors

// Kind classifies an error into one of the categories callers branch on.
// The set is closed: adding a kind means updating every switch over it.
type Kind string

const (
	// KindBadInput indicates the caller supplied invalid or malformed input.
	KindBadInput Kind = "bad_input"

	// KindAccessDenied indicates the principal may not perform the operation.
	KindAccessDenied Kind = "access_denied"

	// KindNotFound indicates the referenced document or chunk does not exist.
	KindNotFound Kind = "not_found"

	// KindConflict indicates a dedupe race or unique-constraint violation.
	KindConflict Kind = "conflict"

	// KindUnavailable indicates a dependency (store, embedder, reranker)
	// could not be reached or failed.
	KindUnavailable Kind = "dependency_unavailable"

	// KindDimensionMismatch indicates the embedder's vector dimension does
	// not match the store's configured dimension.
	KindDimensionMismatch Kind = "dimension_mismatch"

	// KindTimeout indicates a deadline elapsed before the operation finished.
	KindTimeout Kind = "timeout"

	// KindCancelled indicates the caller cancelled the operation.
	KindCancelled Kind = "cancelled"

	// KindInternal indicates an unexpected failure inside the core.
	KindInternal Kind = "internal"
)

// String returns the kind's wire representation.
func (k Kind) String() string {
	return string(k)
}

// retryable reports whether operations failing with this kind may succeed
// on retry. Dependency and timeout failures are transient; everything else
// reflects a condition a retry cannot fix.
func (k Kind) retryable() bool {
	switch k {
	case KindUnavailable, KindTimeout:
		return true
	default:
		return false
	}
}
