package store

import "noteshare/pkg/domain"

// Store defines persistence operations for users, courses, and notes.
// Each method maps to a single-row read or write; there are no cross-entity
// transactions.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUsername(username string) (bool, error)
	HasEmail(email string) (bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// courses
	SaveCourse(domain.Course) error
	GetCourse(id string) (domain.Course, bool, error)
	GetCourseByCode(code string) (domain.Course, bool, error)
	ListCourses() ([]domain.Course, error)

	// notes
	SaveNote(domain.Note) error
	GetNote(id string) (domain.Note, bool, error)
	ListNotes() ([]domain.Note, error)
	ListNotesByCourse(courseID string) ([]domain.Note, error)
	ListNotesByUser(userID string) ([]domain.Note, error)
	DeleteNote(id string) error
}

// SessionStore maps opaque session tokens to user IDs. Only the user ID is
// held in the session; the user record is re-read on every request.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
