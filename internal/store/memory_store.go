package store

import (
	"sort"
	"sync"

	"noteshare/pkg/domain"
)

// MemoryStore keeps all records in-process. It backs tests and local
// development without a database.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User
	usernames map[string]string // username -> user ID
	emails    map[string]string // email -> user ID
	courses   map[string]domain.Course
	codes     map[string]string // course code -> course ID
	notes     map[string]domain.Note
	noteOrder []string // insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		usernames: make(map[string]string),
		emails:    make(map[string]string),
		courses:   make(map[string]domain.Course),
		codes:     make(map[string]string),
		notes:     make(map[string]domain.Note),
	}
}

// SaveUser registers a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.usernames[u.Username] = u.ID
	if u.Email != "" {
		m.emails[u.Email] = u.ID
	}
	return nil
}

// HasUsername checks if the username is taken.
func (m *MemoryStore) HasUsername(username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.usernames[username]
	return ok, nil
}

// HasEmail checks if the email is taken.
func (m *MemoryStore) HasEmail(email string) (bool, error) {
	if email == "" {
		return false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.emails[email]
	return ok, nil
}

// GetUserByUsername looks up a user by username.
func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.usernames[username]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// SaveCourse upserts a course by its unique code.
func (m *MemoryStore) SaveCourse(c domain.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existingID, ok := m.codes[c.Code]; ok {
		existing := m.courses[existingID]
		existing.Name = c.Name
		existing.Description = c.Description
		m.courses[existingID] = existing
		return nil
	}
	m.courses[c.ID] = c
	m.codes[c.Code] = c.ID
	return nil
}

// GetCourse retrieves a course by ID.
func (m *MemoryStore) GetCourse(id string) (domain.Course, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	return c, ok, nil
}

// GetCourseByCode retrieves a course by its unique code.
func (m *MemoryStore) GetCourseByCode(code string) (domain.Course, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.codes[code]; ok {
		c, exists := m.courses[id]
		return c, exists, nil
	}
	return domain.Course{}, false, nil
}

// ListCourses returns all courses ordered by name.
func (m *MemoryStore) ListCourses() ([]domain.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Course, 0, len(m.courses))
	for _, c := range m.courses {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

// SaveNote stores or replaces a note record and tracks insertion order.
func (m *MemoryStore) SaveNote(n domain.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.notes[n.ID]; !exists {
		m.noteOrder = append(m.noteOrder, n.ID)
	}
	m.notes[n.ID] = n
	return nil
}

// GetNote retrieves a note by ID.
func (m *MemoryStore) GetNote(id string) (domain.Note, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notes[id]
	return n, ok, nil
}

// ListNotes returns all notes ordered by creation time descending.
func (m *MemoryStore) ListNotes() ([]domain.Note, error) {
	return m.listNotes(func(domain.Note) bool { return true })
}

// ListNotesByCourse returns notes filtered by course.
func (m *MemoryStore) ListNotesByCourse(courseID string) ([]domain.Note, error) {
	return m.listNotes(func(n domain.Note) bool { return n.CourseID == courseID })
}

// ListNotesByUser returns notes filtered by uploader.
func (m *MemoryStore) ListNotesByUser(userID string) ([]domain.Note, error) {
	return m.listNotes(func(n domain.Note) bool { return n.UserID == userID })
}

func (m *MemoryStore) listNotes(keep func(domain.Note) bool) ([]domain.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Note, 0, len(m.noteOrder))
	for _, id := range m.noteOrder {
		if n, ok := m.notes[id]; ok && keep(n) {
			res = append(res, n)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

// DeleteNote removes a note record.
func (m *MemoryStore) DeleteNote(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.notes, id)
	filtered := m.noteOrder[:0]
	for _, item := range m.noteOrder {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.noteOrder = filtered
	return nil
}
