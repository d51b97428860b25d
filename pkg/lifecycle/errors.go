package lifecycle

import "errors"

// Error taxonomy for lifecycle operations. Validation failures reuse
// toolconfig.ErrInvalid; tool/agent absence reuses toolstore.ErrNotFound.
var (
	// ErrExternalCreate wraps a platform failure while creating the
	// external tool representation. Nothing local was mutated.
	ErrExternalCreate = errors.New("platform tool create failed")

	// ErrExternalUpdate wraps a platform failure during update or attach.
	// The operation aborted before any local mutation; retrying is safe.
	ErrExternalUpdate = errors.New("platform tool update failed")

	// ErrExternalDelete wraps a non-404 platform failure during delete or
	// detach. Retrying the whole operation converges.
	ErrExternalDelete = errors.New("platform tool delete failed")

	// ErrPersistence wraps a local store write failure.
	ErrPersistence = errors.New("local persist failed")

	// ErrAlreadyAttached is returned when the (agent, tool) pair is
	// already attached through either mechanism.
	ErrAlreadyAttached = errors.New("tool already attached to agent")

	// ErrInvalidAttachmentMode is returned when an attachment request does
	// not fit the tool's attachment mode, e.g. locally attaching a tool
	// that never runs on call start.
	ErrInvalidAttachmentMode = errors.New("invalid attachment mode for tool")

	// ErrMissingExternalID is returned when a platform attachment needs an
	// external tool id the record does not carry.
	ErrMissingExternalID = errors.New("tool has no external representation")

	// ErrUnauthorized is returned when the caller's organization does not
	// own the resource.
	ErrUnauthorized = errors.New("organization does not own resource")
)
