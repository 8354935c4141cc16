package tasks

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleMember is the default role for registered users
	RoleMember UserRole = "member"
	// RoleAdmin is an admin role
	RoleAdmin UserRole = "admin"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role          UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Name          string     `bun:"name" json:"name,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"-"`
	LoggedInAt    *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	Todos         []*Todo    `bun:"rel:has-many,join:id=user_id" json:"todos,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureRole defaults the role for records created before roles existed
func (u *User) EnsureRole() {
	if u != nil && u.Role == "" {
		u.Role = RoleMember
	}
}

// Todo is a task owned by a user
type Todo struct {
	bun.BaseModel `bun:"table:todos,alias:todo"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Title         string     `bun:"title,notnull" json:"title"`
	Content       string     `bun:"content" json:"content,omitempty"`
	Completed     bool       `bun:"completed,notnull,default:false" json:"completed"`
	Priority      *int       `bun:"priority" json:"priority,omitempty"`
	DueDate       *time.Time `bun:"due_date,nullzero" json:"due_date,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Overdue reports whether the todo has an elapsed due date and is still open
func (t *Todo) Overdue(now time.Time) bool {
	if t == nil || t.DueDate == nil || t.Completed {
		return false
	}
	return t.DueDate.Before(now)
}
