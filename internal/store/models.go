package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID           string  `gorm:"primaryKey"`
	Username     string  `gorm:"uniqueIndex;not null"`
	Email        *string `gorm:"uniqueIndex"`
	PasswordHash string  `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type CourseModel struct {
	ID          string `gorm:"primaryKey"`
	Code        string `gorm:"uniqueIndex;not null"`
	Name        string `gorm:"not null"`
	Description string
}

func (CourseModel) TableName() string { return "courses" }

type NoteModel struct {
	ID            string `gorm:"primaryKey"`
	Title         string `gorm:"not null"`
	Description   string
	FileName      string    `gorm:"not null"`
	FilePath      string    `gorm:"not null"`
	FileSize      int64     `gorm:"not null"`
	FileType      string    `gorm:"not null"`
	DownloadCount int       `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"not null;index"`
	UserID        string    `gorm:"not null;index"`
	CourseID      string    `gorm:"not null;index"`
}

func (NoteModel) TableName() string { return "notes" }
