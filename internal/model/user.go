package model

import "time"

// User — минимальная проекция пользователя, нужная для входа и смены пароля.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash string     `json:"-"`
	IsStaff      bool       `json:"is_staff"`
	CreatedAt    time.Time  `json:"created_at"`
	DisabledAt   *time.Time `json:"-"` // не null = пользователь отключён, не может войти
}

type UserPublic struct {
	ID        int64  `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsStaff   bool   `json:"is_staff"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsStaff:   u.IsStaff,
	}
}

// Membership — членство пользователя в организации (organization_members).
type Membership struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	UserID         int64  `json:"user_id"`
	Role           string `json:"role"`
}
