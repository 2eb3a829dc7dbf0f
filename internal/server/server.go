package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"noteshare/internal/app"
	"noteshare/internal/ratelimit"
	"noteshare/internal/util"
	"noteshare/pkg/auth"
	"noteshare/pkg/domain"
)

// sessionCookie carries the opaque session token. HttpOnly keeps it away
// from page scripts.
const sessionCookie = "noteshare_session"

// maxMultipartMemory bounds how much of an upload is buffered in memory
// before spilling to temp files.
const maxMultipartMemory = 32 << 20

// Config wires a Server together. The limiters are only created when a
// Redis address and a positive per-minute limit are configured.
type Config struct {
	App                        *app.App
	RedisAddr                  string
	RedisPassword              string
	RegisterRateLimitPerMinute int
	LoginRateLimitPerMinute    int
	TrustedProxies             []string
}

// Server exposes the note-sharing API over HTTP.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	trusted         *util.TrustedProxies
	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
}

// New builds the server and registers its routes.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("server: app is required")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("server: trusted proxies: %w", err)
	}

	s := &Server{
		app:     cfg.App,
		mux:     http.NewServeMux(),
		trusted: trusted,
	}
	if cfg.RedisAddr != "" && cfg.RegisterRateLimitPerMinute > 0 {
		s.registerLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "noteshare:ratelimit:register",
			cfg.RegisterRateLimitPerMinute, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("server: register limiter: %w", err)
		}
	}
	if cfg.RedisAddr != "" && cfg.LoginRateLimitPerMinute > 0 {
		s.loginLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "noteshare:ratelimit:login",
			cfg.LoginRateLimitPerMinute, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("server: login limiter: %w", err)
		}
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("GET /api/auth/check", s.handleAuthCheck)

	s.mux.HandleFunc("GET /api/courses/list", s.handleListCourses)

	s.mux.HandleFunc("POST /api/notes/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/notes/list", s.handleListNotes)
	s.mux.HandleFunc("GET /api/notes/my-notes", s.handleMyNotes)
	// "course/{courseId}" and "{id}/download" are conflicting ServeMux
	// patterns (both match /api/notes/course/download), so the two-segment
	// note routes share one pattern and branch in the handler.
	s.mux.HandleFunc("GET /api/notes/{first}/{second}", s.handleNoteSubroute)
	s.mux.HandleFunc("DELETE /api/notes/{id}", s.handleDeleteNote)
}

func (s *Server) handleNoteSubroute(w http.ResponseWriter, r *http.Request) {
	first, second := r.PathValue("first"), r.PathValue("second")
	switch {
	case first == "course":
		s.handleNotesByCourse(w, r, second)
	case second == "download":
		s.handleDownload(w, r, first)
	default:
		writeStatusFailure(w, http.StatusNotFound, "not found")
	}
}

// Router returns the handler chain: security headers, CORS, request IDs,
// request logging, then the route mux.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

// envelope is the uniform response body. Domain failures keep HTTP 200;
// only transport-level problems change the status code.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeSuccess(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, envelope{Success: false, Message: message})
}

func writeStatusFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

func writeInternalError(w http.ResponseWriter, op string, err error) {
	slog.Error(op, "error", err)
	writeStatusFailure(w, http.StatusInternalServerError, "internal server error")
}

// currentUser resolves the session cookie to a user. Missing or stale
// sessions return ok=false; lookup failures are logged and treated the
// same so a flaky session store reads as "not logged in".
func (s *Server) currentUser(r *http.Request) (domain.User, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return domain.User{}, false
	}
	user, ok, err := s.app.UserFromToken(cookie.Value)
	if err != nil {
		slog.Warn("resolve session", "request_id", util.RequestIDFromRequest(r), "error", err)
		return domain.User{}, false
	}
	return user, ok
}

// requireUser gates a handler on a valid session.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	user, ok := s.currentUser(r)
	if !ok {
		writeFailure(w, "please log in")
		return domain.User{}, false
	}
	return user, true
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// allow applies a limiter keyed by client IP. A nil limiter admits all.
func (s *Server) allow(l *ratelimit.FixedWindowLimiter, r *http.Request) bool {
	if l == nil {
		return true
	}
	return l.Allow(util.ClientIP(r, s.trusted))
}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ip := util.ClientIP(r, s.trusted)
	if !s.allow(s.registerLimiter, r) {
		slog.Warn("register throttled", "event", "user_register", "outcome", "throttled", "ip", ip)
		writeStatusFailure(w, http.StatusTooManyRequests, "too many requests, try again later")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if req.Username == "" {
		writeFailure(w, "username is required")
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		writeFailure(w, err.Error())
		return
	}
	if req.Password != req.ConfirmPassword {
		writeFailure(w, "passwords do not match")
		return
	}

	user, err := s.app.Register(req.Username, req.Email, req.Password)
	switch {
	case errors.Is(err, app.ErrUsernameTaken), errors.Is(err, app.ErrEmailTaken):
		slog.Info("register rejected", "event", "user_register", "outcome", "denied", "ip", ip)
		writeFailure(w, err.Error())
		return
	case err != nil:
		writeInternalError(w, "register user", err)
		return
	}

	token, err := s.app.CreateSession(user.ID)
	if err != nil {
		writeInternalError(w, "create session", err)
		return
	}
	s.setSessionCookie(w, token)

	slog.Info("user registered", "event", "user_register", "outcome", "success",
		"user_id", user.ID, "ip", ip, "request_id", util.RequestIDFromRequest(r))
	writeSuccess(w, "registration successful", userResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := util.ClientIP(r, s.trusted)
	if !s.allow(s.loginLimiter, r) {
		slog.Warn("login throttled", "event", "user_login", "outcome", "throttled", "ip", ip)
		writeStatusFailure(w, http.StatusTooManyRequests, "too many requests, try again later")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, "invalid request body")
		return
	}

	user, err := s.app.Login(strings.TrimSpace(req.Username), req.Password)
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		slog.Info("login rejected", "event", "user_login", "outcome", "denied", "ip", ip)
		writeFailure(w, err.Error())
		return
	case err != nil:
		writeInternalError(w, "login user", err)
		return
	}

	token, err := s.app.CreateSession(user.ID)
	if err != nil {
		writeInternalError(w, "create session", err)
		return
	}
	s.setSessionCookie(w, token)

	slog.Info("user logged in", "event", "user_login", "outcome", "success",
		"user_id", user.ID, "ip", ip, "request_id", util.RequestIDFromRequest(r))
	writeSuccess(w, "login successful", userResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		if err := s.app.Logout(cookie.Value); err != nil {
			slog.Warn("delete session", "error", err)
		}
	}
	s.clearSessionCookie(w)
	writeSuccess(w, "logged out", nil)
}

func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(r)
	if !ok {
		writeFailure(w, "please log in")
		return
	}
	writeSuccess(w, "logged in", userResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.app.ListCourses()
	if err != nil {
		writeInternalError(w, "list courses", err)
		return
	}
	writeSuccess(w, "ok", courses)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeFailure(w, "invalid multipart form")
		return
	}
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		writeFailure(w, "title is required")
		return
	}
	courseID := strings.TrimSpace(r.FormValue("courseId"))
	if courseID == "" {
		writeFailure(w, "courseId is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeFailure(w, "file is required")
		return
	}
	defer file.Close()

	note, err := s.app.UploadNote(app.UploadParams{
		Title:       title,
		Description: strings.TrimSpace(r.FormValue("description")),
		CourseID:    courseID,
		UserID:      user.ID,
		FileName:    header.Filename,
		FileSize:    header.Size,
		File:        file,
	})
	switch {
	case errors.Is(err, app.ErrCourseNotFound),
		errors.Is(err, app.ErrUnsupportedFileType),
		errors.Is(err, app.ErrFileTooLarge):
		writeFailure(w, err.Error())
		return
	case err != nil:
		writeInternalError(w, "upload note", err)
		return
	}

	slog.Info("note uploaded", "event", "note_upload", "outcome", "success",
		"note_id", note.ID, "user_id", user.ID, "size", note.FileSize,
		"request_id", util.RequestIDFromRequest(r))
	// Clients read data as the bare note identifier.
	writeSuccess(w, "upload successful", note.ID)
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.app.ListAllNotes()
	if err != nil {
		writeInternalError(w, "list notes", err)
		return
	}
	writeSuccess(w, "ok", notes)
}

func (s *Server) handleNotesByCourse(w http.ResponseWriter, r *http.Request, courseID string) {
	notes, err := s.app.ListNotesByCourse(courseID)
	if err != nil {
		writeInternalError(w, "list notes by course", err)
		return
	}
	writeSuccess(w, "ok", notes)
}

func (s *Server) handleMyNotes(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	notes, err := s.app.ListNotesByUser(user.ID, user.ID)
	if err != nil {
		writeInternalError(w, "list own notes", err)
		return
	}
	writeSuccess(w, "ok", notes)
}

// handleDownload streams the attachment. Downloads are unauthenticated
// so shared links work without a session.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, id string) {
	note, file, err := s.app.DownloadNote(id)
	switch {
	case errors.Is(err, app.ErrNoteNotFound):
		writeStatusFailure(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeInternalError(w, "download note", err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		writeInternalError(w, "stat note file", err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", note.FileName))
	http.ServeContent(w, r, note.FileName, info.ModTime(), file)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	err := s.app.DeleteNote(id, user.ID)
	switch {
	case errors.Is(err, app.ErrNoteNotFound), errors.Is(err, app.ErrForbidden):
		slog.Info("delete rejected", "event", "note_delete", "outcome", "denied",
			"note_id", id, "user_id", user.ID)
		writeFailure(w, err.Error())
		return
	case err != nil:
		writeInternalError(w, "delete note", err)
		return
	}

	slog.Info("note deleted", "event", "note_delete", "outcome", "success",
		"note_id", id, "user_id", user.ID, "request_id", util.RequestIDFromRequest(r))
	writeSuccess(w, "note deleted", nil)
}
