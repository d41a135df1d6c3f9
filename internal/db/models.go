package db

import "time"

// StatusKind is the lifecycle tag of a provisioned account. Free-text diagnostics
// live in Account.StatusDetail, never in the tag itself.
type StatusKind string

const (
	StatusNew      StatusKind = "new"
	StatusLoggedIn StatusKind = "logged_in"
	StatusError    StatusKind = "error"
)

// Folder groups accounts. Names are unique.
type Folder struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null;size:191" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is a provisioned remote account.
type Account struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Username      string     `gorm:"uniqueIndex;not null;size:191" json:"username"`
	Password      string     `gorm:"not null;size:255" json:"-"`
	Email         string     `gorm:"not null;size:255" json:"email"`
	EmailPassword string     `gorm:"not null;size:255" json:"-"`
	Proxy         string     `gorm:"size:512" json:"proxy"`
	Status        StatusKind `gorm:"size:32;not null;default:'new';index" json:"status"`
	StatusDetail  string     `gorm:"type:text" json:"status_detail,omitempty"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
	FolderID      *uint      `gorm:"index" json:"folder_id,omitempty"`
	Folder        *Folder    `gorm:"foreignKey:FolderID;constraint:OnDelete:SET NULL" json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// User represents an operator allowed to drive the API
type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null;size:100" json:"username"`
	Password  string    `gorm:"not null;size:255" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
