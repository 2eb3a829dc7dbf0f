package app

import "errors"

// Domain errors surfaced to the HTTP layer. Handlers map these to failure
// envelopes; anything else is treated as an internal error.
var (
	ErrUsernameTaken       = errors.New("username already exists")
	ErrEmailTaken          = errors.New("email already exists")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrCourseNotFound      = errors.New("course not found")
	ErrNoteNotFound        = errors.New("note not found")
	ErrForbidden           = errors.New("no permission to delete this note")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file exceeds the maximum allowed size")
)
