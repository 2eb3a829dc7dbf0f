package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"noteshare/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &CourseModel{}, &NoteModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser inserts a new user row.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Create(&model).Error
}

// HasUsername checks if the username is taken.
func (s *GormStore) HasUsername(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasEmail checks if the email is taken. Empty emails are never taken.
func (s *GormStore) HasEmail(email string) (bool, error) {
	if email == "" {
		return false, nil
	}
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SaveCourse upserts a course by its unique code. Used for catalogue seeding.
func (s *GormStore) SaveCourse(c domain.Course) error {
	model := courseToModel(c)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description"}),
	}).Create(&model).Error
}

// GetCourse retrieves a course by ID.
func (s *GormStore) GetCourse(id string) (domain.Course, bool, error) {
	var model CourseModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Course{}, false, nil
		}
		return domain.Course{}, false, err
	}
	return courseFromModel(model), true, nil
}

// GetCourseByCode retrieves a course by its unique code.
func (s *GormStore) GetCourseByCode(code string) (domain.Course, bool, error) {
	var model CourseModel
	if err := s.db.Where("code = ?", code).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Course{}, false, nil
		}
		return domain.Course{}, false, err
	}
	return courseFromModel(model), true, nil
}

// ListCourses returns all courses ordered by name.
func (s *GormStore) ListCourses() ([]domain.Course, error) {
	var models []CourseModel
	if err := s.db.Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Course, 0, len(models))
	for _, m := range models {
		res = append(res, courseFromModel(m))
	}
	return res, nil
}

// SaveNote stores or updates a note. The only field mutated after creation is
// the download count.
func (s *GormStore) SaveNote(n domain.Note) error {
	model := noteToModel(n)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"download_count"}),
	}).Create(&model).Error
}

// GetNote retrieves a note by ID.
func (s *GormStore) GetNote(id string) (domain.Note, bool, error) {
	var model NoteModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Note{}, false, nil
		}
		return domain.Note{}, false, err
	}
	return noteFromModel(model), true, nil
}

// ListNotes returns all notes ordered by creation time descending.
func (s *GormStore) ListNotes() ([]domain.Note, error) {
	return s.listNotes()
}

// ListNotesByCourse returns notes filtered by course.
func (s *GormStore) ListNotesByCourse(courseID string) ([]domain.Note, error) {
	return s.listNotes("course_id = ?", courseID)
}

// ListNotesByUser returns notes filtered by uploader.
func (s *GormStore) ListNotesByUser(userID string) ([]domain.Note, error) {
	return s.listNotes("user_id = ?", userID)
}

func (s *GormStore) listNotes(conds ...any) ([]domain.Note, error) {
	var models []NoteModel
	tx := s.db.Order("created_at DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Note, 0, len(models))
	for _, m := range models {
		res = append(res, noteFromModel(m))
	}
	return res, nil
}

// DeleteNote removes a note row.
func (s *GormStore) DeleteNote(id string) error {
	return s.db.Delete(&NoteModel{}, "id = ?", id).Error
}

func userToModel(u domain.User) UserModel {
	var email *string
	if u.Email != "" {
		email = &u.Email
	}
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	user := domain.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
	if m.Email != nil {
		user.Email = *m.Email
	}
	return user
}

func courseToModel(c domain.Course) CourseModel {
	return CourseModel{
		ID:          c.ID,
		Code:        c.Code,
		Name:        c.Name,
		Description: c.Description,
	}
}

func courseFromModel(m CourseModel) domain.Course {
	return domain.Course{
		ID:          m.ID,
		Code:        m.Code,
		Name:        m.Name,
		Description: m.Description,
	}
}

func noteToModel(n domain.Note) NoteModel {
	return NoteModel{
		ID:            n.ID,
		Title:         n.Title,
		Description:   n.Description,
		FileName:      n.FileName,
		FilePath:      n.FilePath,
		FileSize:      n.FileSize,
		FileType:      n.FileType,
		DownloadCount: n.DownloadCount,
		CreatedAt:     n.CreatedAt,
		UserID:        n.UserID,
		CourseID:      n.CourseID,
	}
}

func noteFromModel(m NoteModel) domain.Note {
	return domain.Note{
		ID:            m.ID,
		Title:         m.Title,
		Description:   m.Description,
		FileName:      m.FileName,
		FilePath:      m.FilePath,
		FileSize:      m.FileSize,
		FileType:      m.FileType,
		DownloadCount: m.DownloadCount,
		CreatedAt:     m.CreatedAt,
		UserID:        m.UserID,
		CourseID:      m.CourseID,
	}
}
