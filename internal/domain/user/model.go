package user

import "time"

type User struct {
	ID        int64
	Login     string
	Password  string // bcrypt hash
	CreatedAt time.Time
}

// Credentials login/password pair sent by the client
type Credentials struct {
	Login    string `json:"login" minLength:"3" maxLength:"64" doc:"User login"`
	Password string `json:"password" minLength:"8" maxLength:"72" doc:"User password"`
}
