package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"noteshare/internal/storage"
	"noteshare/internal/store"
	"noteshare/internal/util"
	"noteshare/pkg/auth"
	"noteshare/pkg/domain"
)

// maxUploadBytes caps attachment size at 10 MiB. Files of exactly this
// size are accepted.
const maxUploadBytes = 10 * 1024 * 1024

// allowedFileTypes is the upload extension allowlist, matched after
// lowercasing the extension.
var allowedFileTypes = map[string]bool{
	"pdf":  true,
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
}

// Config wires an App together. Store is required. Sessions may be
// injected directly (tests); otherwise one is selected from RedisAddr or
// JWTSecret, falling back to in-memory sessions.
type Config struct {
	Store         store.Store
	Sessions      store.SessionStore
	Files         *storage.FileStore
	UploadDir     string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string
	SessionTTL    time.Duration
}

// App implements the note-sharing service operations on top of the
// persistence, session, and file-storage layers.
type App struct {
	store    store.Store
	sessions store.SessionStore
	files    *storage.FileStore
}

// New builds an App from config.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("app: store is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}

	sessions := cfg.Sessions
	if sessions == nil {
		switch {
		case cfg.RedisAddr != "":
			sessions = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionTTL)
		case cfg.JWTSecret != "":
			sessions = store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL)
		default:
			sessions = store.NewMemorySessionStore()
		}
	}

	files := cfg.Files
	if files == nil {
		var err error
		files, err = storage.NewFileStore(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
	}

	return &App{
		store:    cfg.Store,
		sessions: sessions,
		files:    files,
	}, nil
}

// Register creates a user after uniqueness checks. The email is optional;
// when present it must also be unused.
func (a *App) Register(username, email, password string) (domain.User, error) {
	taken, err := a.store.HasUsername(username)
	if err != nil {
		return domain.User{}, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return domain.User{}, ErrUsernameTaken
	}
	if email != "" {
		taken, err := a.store.HasEmail(email)
		if err != nil {
			return domain.User{}, fmt.Errorf("check email: %w", err)
		}
		if taken {
			return domain.User{}, ErrEmailTaken
		}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:           util.NewID(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// Login verifies credentials. Unknown username and wrong password return
// the same error so callers cannot probe which usernames exist.
func (a *App) Login(username, password string) (domain.User, error) {
	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// CreateSession issues a session token for a user.
func (a *App) CreateSession(userID string) (string, error) {
	return a.sessions.NewSession(userID)
}

// UserFromToken resolves a session token to its user. The user record is
// re-read so a stale session never serves outdated identity.
func (a *App) UserFromToken(token string) (domain.User, bool, error) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false, err
	}
	return a.store.GetUserByID(userID)
}

// Logout invalidates a session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// ListCourses returns the catalogue ordered by name.
func (a *App) ListCourses() ([]domain.Course, error) {
	return a.store.ListCourses()
}

// SeedCourses upserts the configured catalogue. SaveCourse keys on the
// unique course code, so reseeding updates names and descriptions while
// existing IDs stay stable.
func (a *App) SeedCourses(courses []domain.Course) error {
	for _, c := range courses {
		if c.ID == "" {
			c.ID = util.NewID()
		}
		if err := a.store.SaveCourse(c); err != nil {
			return fmt.Errorf("seed course %s: %w", c.Code, err)
		}
	}
	return nil
}

// UploadParams carries one attachment upload.
type UploadParams struct {
	Title       string
	Description string
	CourseID    string
	UserID      string
	FileName    string
	FileSize    int64
	File        io.Reader
}

// UploadNote validates and stores an attachment. Validation runs before
// any disk write: course existence, then extension, then size. A failed
// row insert cleans up the file already written.
func (a *App) UploadNote(p UploadParams) (domain.Note, error) {
	if _, ok, err := a.store.GetCourse(p.CourseID); err != nil {
		return domain.Note{}, fmt.Errorf("get course: %w", err)
	} else if !ok {
		return domain.Note{}, ErrCourseNotFound
	}

	fileType := fileExtension(p.FileName)
	if !allowedFileTypes[fileType] {
		return domain.Note{}, ErrUnsupportedFileType
	}
	if p.FileSize > maxUploadBytes {
		return domain.Note{}, ErrFileTooLarge
	}

	_, fullPath, err := a.files.Save(p.FileName, p.File)
	if err != nil {
		return domain.Note{}, fmt.Errorf("store file: %w", err)
	}

	note := domain.Note{
		ID:          util.NewID(),
		Title:       p.Title,
		Description: p.Description,
		FileName:    p.FileName,
		FilePath:    fullPath,
		FileSize:    p.FileSize,
		FileType:    fileType,
		CreatedAt:   time.Now().UTC(),
		UserID:      p.UserID,
		CourseID:    p.CourseID,
	}
	if err := a.store.SaveNote(note); err != nil {
		if rmErr := a.files.Remove(fullPath); rmErr != nil {
			slog.Warn("cleanup after failed note insert", "path", fullPath, "error", rmErr)
		}
		return domain.Note{}, fmt.Errorf("save note: %w", err)
	}
	return note, nil
}

// ListAllNotes returns every note, newest first.
func (a *App) ListAllNotes() ([]domain.NoteView, error) {
	notes, err := a.store.ListNotes()
	if err != nil {
		return nil, err
	}
	return a.project(notes, "")
}

// ListNotesByCourse returns the notes of one course, newest first. An
// unknown course yields an empty list, like any other filter miss; only
// uploads resolve the course and reject unknown IDs.
func (a *App) ListNotesByCourse(courseID string) ([]domain.NoteView, error) {
	notes, err := a.store.ListNotesByCourse(courseID)
	if err != nil {
		return nil, err
	}
	return a.project(notes, "")
}

// ListNotesByUser returns one uploader's notes with the deletable flag
// set relative to the viewer.
func (a *App) ListNotesByUser(userID, viewerID string) ([]domain.NoteView, error) {
	notes, err := a.store.ListNotesByUser(userID)
	if err != nil {
		return nil, err
	}
	return a.project(notes, viewerID)
}

// NoteByID returns a single note.
func (a *App) NoteByID(id string) (domain.Note, error) {
	note, ok, err := a.store.GetNote(id)
	if err != nil {
		return domain.Note{}, fmt.Errorf("get note: %w", err)
	}
	if !ok {
		return domain.Note{}, ErrNoteNotFound
	}
	return note, nil
}

// IncrementDownloadCount bumps a note's counter by one. Deliberately a
// plain read-then-write: concurrent downloads may lose an update, which
// is acceptable for an approximate metric.
func (a *App) IncrementDownloadCount(id string) (domain.Note, error) {
	note, err := a.NoteByID(id)
	if err != nil {
		return domain.Note{}, err
	}
	note.DownloadCount++
	if err := a.store.SaveNote(note); err != nil {
		return domain.Note{}, fmt.Errorf("save note: %w", err)
	}
	return note, nil
}

// DownloadNote opens a note's file for streaming and bumps its download
// count. The caller closes the file. A lost count update is logged, not
// fatal: serving the file wins over exact counting.
func (a *App) DownloadNote(id string) (domain.Note, *os.File, error) {
	note, err := a.NoteByID(id)
	if err != nil {
		return domain.Note{}, nil, err
	}

	file, err := a.files.Open(note.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Note{}, nil, ErrNoteNotFound
		}
		return domain.Note{}, nil, fmt.Errorf("open file: %w", err)
	}

	updated, err := a.IncrementDownloadCount(note.ID)
	if err != nil {
		slog.Warn("update download count", "note_id", note.ID, "error", err)
		updated = note
	}
	return updated, file, nil
}

// DeleteNote removes a note owned by the requester. The file delete is
// best-effort; the row delete is authoritative.
func (a *App) DeleteNote(id, requesterID string) error {
	note, ok, err := a.store.GetNote(id)
	if err != nil {
		return fmt.Errorf("get note: %w", err)
	}
	if !ok {
		return ErrNoteNotFound
	}
	if note.UserID != requesterID {
		return ErrForbidden
	}

	if err := a.files.Remove(note.FilePath); err != nil {
		slog.Warn("remove note file", "note_id", note.ID, "path", note.FilePath, "error", err)
	}
	if err := a.store.DeleteNote(id); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

// project maps notes to their listing view, resolving course and uploader
// names once per distinct ID. viewerID != "" populates the deletable flag.
func (a *App) project(notes []domain.Note, viewerID string) ([]domain.NoteView, error) {
	courseNames := make(map[string]string)
	userNames := make(map[string]string)

	views := make([]domain.NoteView, 0, len(notes))
	for _, n := range notes {
		courseName, ok := courseNames[n.CourseID]
		if !ok {
			if course, found, err := a.store.GetCourse(n.CourseID); err != nil {
				return nil, fmt.Errorf("get course: %w", err)
			} else if found {
				courseName = course.Name
			}
			courseNames[n.CourseID] = courseName
		}
		uploaderName, ok := userNames[n.UserID]
		if !ok {
			if user, found, err := a.store.GetUserByID(n.UserID); err != nil {
				return nil, fmt.Errorf("get user: %w", err)
			} else if found {
				uploaderName = user.Username
			}
			userNames[n.UserID] = uploaderName
		}

		view := domain.NoteView{
			ID:            n.ID,
			Title:         n.Title,
			Description:   n.Description,
			FileName:      n.FileName,
			FileType:      n.FileType,
			FileSize:      n.FileSize,
			DownloadCount: n.DownloadCount,
			CreatedTime:   n.CreatedAt,
			CourseName:    courseName,
			UploaderName:  uploaderName,
			UploaderID:    n.UserID,
			DownloadURL:   "/api/notes/" + n.ID + "/download",
		}
		if viewerID != "" {
			deletable := n.UserID == viewerID
			view.Deletable = &deletable
		}
		views = append(views, view)
	}
	return views, nil
}

// fileExtension returns the lowercased extension without the dot, or ""
// when the name has none.
func fileExtension(name string) string {
	ext := filepath.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
