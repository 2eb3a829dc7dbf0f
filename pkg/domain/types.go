package domain

import "time"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Course struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Note struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	FileName      string    `json:"fileName"`
	FilePath      string    `json:"-"`
	FileSize      int64     `json:"fileSize"`
	FileType      string    `json:"fileType"`
	DownloadCount int       `json:"downloadCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UserID        string    `json:"userId"`
	CourseID      string    `json:"courseId"`
}

// NoteView is the listing projection of a Note with derived display fields.
// Deletable is only populated on owner-scoped listings.
type NoteView struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	FileName      string    `json:"fileName"`
	FileType      string    `json:"fileType"`
	FileSize      int64     `json:"fileSize"`
	DownloadCount int       `json:"downloadCount"`
	CreatedTime   time.Time `json:"createdTime"`
	CourseName    string    `json:"courseName"`
	UploaderName  string    `json:"uploaderName"`
	UploaderID    string    `json:"uploaderId"`
	DownloadURL   string    `json:"downloadUrl"`
	Deletable     *bool     `json:"deletable,omitempty"`
}
