package app

import (
	"errors"
	"os"
	"strings"
	"testing"

	"noteshare/internal/storage"
	"noteshare/internal/store"
	"noteshare/pkg/domain"
)

func newTestApp(t *testing.T) (*App, *store.MemoryStore, string) {
	t.Helper()
	uploadDir := t.TempDir()
	files, err := storage.NewFileStore(uploadDir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	memStore := store.NewMemoryStore()
	a, err := New(Config{
		Store:    memStore,
		Sessions: store.NewMemorySessionStore(),
		Files:    files,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, memStore, uploadDir
}

func seedCourse(t *testing.T, a *App, code, name string) domain.Course {
	t.Helper()
	if err := a.SeedCourses([]domain.Course{{Code: code, Name: name}}); err != nil {
		t.Fatalf("seed course: %v", err)
	}
	course, ok, err := a.store.GetCourseByCode(code)
	if err != nil || !ok {
		t.Fatalf("seeded course missing: ok=%v err=%v", ok, err)
	}
	return course
}

func uploadFixture(t *testing.T, a *App, userID, courseID, name, content string) domain.Note {
	t.Helper()
	note, err := a.UploadNote(UploadParams{
		Title:    name,
		CourseID: courseID,
		UserID:   userID,
		FileName: name,
		FileSize: int64(len(content)),
		File:     strings.NewReader(content),
	})
	if err != nil {
		t.Fatalf("upload %s: %v", name, err)
	}
	return note
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	a, _, _ := newTestApp(t)

	user, err := a.Register("alice", "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == "" || user.PasswordHash == "secret1" {
		t.Fatalf("user not created properly: %+v", user)
	}

	if _, err := a.Register("alice", "other@example.com", "secret1"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("duplicate username err = %v, want ErrUsernameTaken", err)
	}
	if _, err := a.Register("bob", "alice@example.com", "secret1"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate email err = %v, want ErrEmailTaken", err)
	}
	// Two users without email must both succeed.
	if _, err := a.Register("carol", "", "secret1"); err != nil {
		t.Fatalf("register without email: %v", err)
	}
	if _, err := a.Register("dave", "", "secret1"); err != nil {
		t.Fatalf("second register without email: %v", err)
	}
}

func TestLoginUsesOneGenericError(t *testing.T) {
	a, _, _ := newTestApp(t)
	if _, err := a.Register("alice", "", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := a.Login("alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := a.Login("nobody", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v, want ErrInvalidCredentials", err)
	}

	user, err := a.Login("alice", "secret1")
	if err != nil {
		t.Fatalf("valid login: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("login returned wrong user: %+v", user)
	}
}

func TestSessionLifecycle(t *testing.T) {
	a, _, _ := newTestApp(t)
	user, err := a.Register("alice", "", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	token, err := a.CreateSession(user.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	got, ok, err := a.UserFromToken(token)
	if err != nil || !ok || got.ID != user.ID {
		t.Fatalf("user from token = (%+v, %v, %v)", got, ok, err)
	}

	if err := a.Logout(token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok, err := a.UserFromToken(token); err != nil || ok {
		t.Fatalf("expected token to be invalid after logout, ok=%v err=%v", ok, err)
	}
}

func TestSeedCoursesIsIdempotent(t *testing.T) {
	a, _, _ := newTestApp(t)
	seeds := []domain.Course{
		{Code: "CS101", Name: "Algorithms"},
		{Code: "CS201", Name: "Databases"},
	}
	if err := a.SeedCourses(seeds); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	first, _ := a.ListCourses()

	seeds[0].Description = "updated description"
	if err := a.SeedCourses(seeds); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	second, err := a.ListCourses()
	if err != nil {
		t.Fatalf("list courses: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("course count after reseed = %d, want 2", len(second))
	}
	if first[0].ID != second[0].ID {
		t.Fatalf("reseed changed course ID: %q -> %q", first[0].ID, second[0].ID)
	}
	if second[0].Description != "updated description" {
		t.Fatalf("reseed did not update description: %+v", second[0])
	}
}

func TestUploadValidation(t *testing.T) {
	a, _, uploadDir := newTestApp(t)
	user, _ := a.Register("alice", "", "secret1")
	course := seedCourse(t, a, "CS101", "Algorithms")

	cases := []struct {
		name    string
		params  UploadParams
		wantErr error
	}{
		{
			name: "unknown course",
			params: UploadParams{
				CourseID: "missing", UserID: user.ID,
				FileName: "a.pdf", FileSize: 10, File: strings.NewReader("x"),
			},
			wantErr: ErrCourseNotFound,
		},
		{
			name: "disallowed extension",
			params: UploadParams{
				CourseID: course.ID, UserID: user.ID,
				FileName: "a.exe", FileSize: 10, File: strings.NewReader("x"),
			},
			wantErr: ErrUnsupportedFileType,
		},
		{
			name: "no extension",
			params: UploadParams{
				CourseID: course.ID, UserID: user.ID,
				FileName: "README", FileSize: 10, File: strings.NewReader("x"),
			},
			wantErr: ErrUnsupportedFileType,
		},
		{
			name: "oversize",
			params: UploadParams{
				CourseID: course.ID, UserID: user.ID,
				FileName: "a.pdf", FileSize: 10*1024*1024 + 1, File: strings.NewReader("x"),
			},
			wantErr: ErrFileTooLarge,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := a.UploadNote(tc.params); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}

	// No rejected upload may leave a file behind.
	entries, err := os.ReadDir(uploadDir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected uploads left %d files on disk", len(entries))
	}

	notes, _ := a.ListAllNotes()
	if len(notes) != 0 {
		t.Fatalf("rejected uploads left %d rows", len(notes))
	}
}

func TestUploadAcceptsExactSizeLimit(t *testing.T) {
	a, _, _ := newTestApp(t)
	user, _ := a.Register("alice", "", "secret1")
	course := seedCourse(t, a, "CS101", "Algorithms")

	note, err := a.UploadNote(UploadParams{
		Title:    "limit",
		CourseID: course.ID,
		UserID:   user.ID,
		FileName: "limit.pdf",
		FileSize: 10 * 1024 * 1024,
		File:     strings.NewReader("header bytes only"),
	})
	if err != nil {
		t.Fatalf("upload at exact limit: %v", err)
	}
	if note.FileSize != 10*1024*1024 {
		t.Fatalf("file size = %d", note.FileSize)
	}
}

func TestUploadStoresNoteAndFile(t *testing.T) {
	a, _, _ := newTestApp(t)
	user, _ := a.Register("alice", "", "secret1")
	course := seedCourse(t, a, "CS101", "Algorithms")

	note, err := a.UploadNote(UploadParams{
		Title:       "Week 1",
		Description: "Intro lecture",
		CourseID:    course.ID,
		UserID:      user.ID,
		FileName:    "Week 1 Notes.PDF",
		FileSize:    5,
		File:        strings.NewReader("hello"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if note.FileType != "pdf" {
		t.Fatalf("file type = %q, want lowercased pdf", note.FileType)
	}
	if note.FileName != "Week 1 Notes.PDF" {
		t.Fatalf("original name not preserved: %q", note.FileName)
	}
	data, err := os.ReadFile(note.FilePath)
	if err != nil {
		t.Fatalf("stored file unreadable: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("stored content = %q", data)
	}

	views, err := a.ListAllNotes()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("listing count = %d, want 1", len(views))
	}
	v := views[0]
	if v.CourseName != "Algorithms" || v.UploaderName != "alice" {
		t.Fatalf("projection names wrong: %+v", v)
	}
	if v.DownloadURL != "/api/notes/"+note.ID+"/download" {
		t.Fatalf("download url = %q", v.DownloadURL)
	}
	if v.Deletable != nil {
		t.Fatalf("public listing must not carry deletable flag")
	}
}

func TestListNotesByCourse(t *testing.T) {
	a, _, _ := newTestApp(t)
	user, _ := a.Register("alice", "", "secret1")
	algo := seedCourse(t, a, "CS101", "Algorithms")
	db := seedCourse(t, a, "CS201", "Databases")

	uploadFixture(t, a, user.ID, algo.ID, "a.pdf", "x")
	uploadFixture(t, a, user.ID, db.ID, "b.pdf", "x")

	views, err := a.ListNotesByCourse(algo.ID)
	if err != nil {
		t.Fatalf("list by course: %v", err)
	}
	if len(views) != 1 || views[0].CourseName != "Algorithms" {
		t.Fatalf("course listing = %+v", views)
	}

	// An unknown course filters down to nothing rather than erroring.
	views, err = a.ListNotesByCourse("missing")
	if err != nil {
		t.Fatalf("unknown course: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("unknown course listing = %+v, want empty", views)
	}
}

func TestListNotesByUserSetsDeletable(t *testing.T) {
	a, _, _ := newTestApp(t)
	alice, _ := a.Register("alice", "", "secret1")
	course := seedCourse(t, a, "CS101", "Algorithms")
	uploadFixture(t, a, alice.ID, course.ID, "a.pdf", "x")

	views, err := a.ListNotesByUser(alice.ID, alice.ID)
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(views) != 1 || views[0].Deletable == nil || !*views[0].Deletable {
		t.Fatalf("own listing must be deletable: %+v", views)
	}
}

func TestNoteByID(t *testing.T) {
	a, _, _ := newTestApp(t)
	user, _ := a.Register("alice", "", "secret1")
	course := seedCourse(t, a, "CS101", "Algorithms")
	note := uploadFixture(t, a, user.ID, course.ID, "a.pdf", "x")

	got, err := a.NoteByID(note.ID)
	if err != nil || got.ID != note.ID {
		t.Fatalf("note by id = (%+v, %v)", got, err)
	}
	if _, err := a.NoteByID("missing"); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("missing note err = %v, want ErrNoteNotFound", err)
	}
}

func TestIncrementDownloadCount(t *testing.T) {
	a, _, _ := newTestApp(t)
	user, _ := a.Register("alice", "", "secret1")
	course := seedCourse(t, a, "CS101", "Algorithms")
	note := uploadFixture(t, a, user.ID, course.ID, "a.pdf", "x")

	for want := 1; want <= 3; want++ {
		got, err := a.IncrementDownloadCount(note.ID)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got.DownloadCount != want {
			t.Fatalf("download count = %d, want %d", got.DownloadCount, want)
		}
	}
	if _, err := a.IncrementDownloadCount("missing"); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("missing note err = %v, want ErrNoteNotFound", err)
	}
}

func TestDownloadNoteIncrementsCount(t *testing.T) {
	a, _, _ := newTestApp(t)
	user, _ := a.Register("alice", "", "secret1")
	course := seedCourse(t, a, "CS101", "Algorithms")
	note := uploadFixture(t, a, user.ID, course.ID, "a.pdf", "payload")

	got, file, err := a.DownloadNote(note.ID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	file.Close()
	if got.DownloadCount != 1 {
		t.Fatalf("download count = %d, want 1", got.DownloadCount)
	}

	got, file, err = a.DownloadNote(note.ID)
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	file.Close()
	if got.DownloadCount != 2 {
		t.Fatalf("download count = %d, want 2", got.DownloadCount)
	}
}

func TestDownloadNoteMissing(t *testing.T) {
	a, _, _ := newTestApp(t)
	user, _ := a.Register("alice", "", "secret1")
	course := seedCourse(t, a, "CS101", "Algorithms")

	if _, _, err := a.DownloadNote("missing"); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("missing row err = %v, want ErrNoteNotFound", err)
	}

	// A row whose file vanished behaves like a missing note.
	note := uploadFixture(t, a, user.ID, course.ID, "a.pdf", "x")
	if err := os.Remove(note.FilePath); err != nil {
		t.Fatalf("remove file: %v", err)
	}
	if _, _, err := a.DownloadNote(note.ID); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("missing file err = %v, want ErrNoteNotFound", err)
	}
}

func TestDeleteNoteOwnership(t *testing.T) {
	a, _, _ := newTestApp(t)
	alice, _ := a.Register("alice", "", "secret1")
	bob, _ := a.Register("bob", "", "secret1")
	course := seedCourse(t, a, "CS101", "Algorithms")
	note := uploadFixture(t, a, alice.ID, course.ID, "a.pdf", "x")

	if err := a.DeleteNote(note.ID, bob.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign delete err = %v, want ErrForbidden", err)
	}
	if _, ok, _ := a.store.GetNote(note.ID); !ok {
		t.Fatalf("forbidden delete must not remove the note")
	}

	if err := a.DeleteNote(note.ID, alice.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, ok, _ := a.store.GetNote(note.ID); ok {
		t.Fatalf("note row still present after delete")
	}
	if _, err := os.Stat(note.FilePath); !os.IsNotExist(err) {
		t.Fatalf("note file still present after delete: %v", err)
	}

	if err := a.DeleteNote(note.ID, alice.ID); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("repeat delete err = %v, want ErrNoteNotFound", err)
	}
}

func TestDeleteNoteSurvivesMissingFile(t *testing.T) {
	a, _, _ := newTestApp(t)
	alice, _ := a.Register("alice", "", "secret1")
	course := seedCourse(t, a, "CS101", "Algorithms")
	note := uploadFixture(t, a, alice.ID, course.ID, "a.pdf", "x")

	if err := os.Remove(note.FilePath); err != nil {
		t.Fatalf("remove file: %v", err)
	}
	if err := a.DeleteNote(note.ID, alice.ID); err != nil {
		t.Fatalf("delete with missing file: %v", err)
	}
	if _, ok, _ := a.store.GetNote(note.ID); ok {
		t.Fatalf("row delete must be authoritative even without the file")
	}
}
