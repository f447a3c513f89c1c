package services

import "errors"

// Errors returned by the Manager. Handlers map them to user-facing messages.
var (
	ErrNoFile          = errors.New("no file selected")
	ErrInvalidFileType = errors.New("invalid file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrNotFound        = errors.New("analysis not found")
	ErrProcessing      = errors.New("error processing file")
)

// rejectionReason is the metrics label of a validation error.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrNoFile):
		return "no_file"
	case errors.Is(err, ErrInvalidFileType):
		return "invalid_type"
	case errors.Is(err, ErrFileTooLarge):
		return "too_large"
	default:
		return "other"
	}
}
