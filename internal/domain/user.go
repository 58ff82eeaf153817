package domain

import "context"

const (
	RoleLearner    = "learner"
	RoleInstructor = "instructor"
)

type User struct {
	ID             string `json:"id"             db:"id"`
	Name           string `json:"name"           db:"name"`
	Role           string `json:"role"           db:"role"`
	ProfilePicture string `json:"profilePicture" db:"profile_picture"`

	// live subscription state, bound to the websocket connection
	Events    EventChan `json:"-"`
	CloseSlow func()    `json:"-"`
}

var AnonymousUser = &User{}

func (u *User) IsAnonymousUser() bool {
	return u == AnonymousUser
}

func (u *User) IsLearner() bool {
	return u.Role == RoleLearner
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetForToken(ctx context.Context, tokenHash []byte) (*User, error)
}

func ValidateRole(role string, ev *ErrValidation) {
	ev.Evaluate(role == RoleLearner || role == RoleInstructor, "userType", `must be "learner" or "instructor"`)
}
