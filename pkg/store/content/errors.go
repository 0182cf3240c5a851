package content

import "errors"

// ============================================================================
// Standard Content Store Errors
// ============================================================================

// These errors provide a consistent way to indicate common failure conditions
// across all content store implementations. The filesystem layer checks for
// them with errors.Is and maps them onto backend errors.
//
// Implementations should wrap these errors with additional context:
//
//	if !fileExists {
//	    return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
//	}

var (
	// ErrContentNotFound indicates the requested content does not exist.
	ErrContentNotFound = errors.New("content not found")

	// ErrInvalidContentID indicates the ContentID format is invalid.
	ErrInvalidContentID = errors.New("invalid content ID")

	// ErrWriterClosed indicates a write after Close.
	ErrWriterClosed = errors.New("content writer closed")

	// ErrStoreClosed indicates an operation on a closed store.
	ErrStoreClosed = errors.New("content store closed")
)
