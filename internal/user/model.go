package user

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID        uint
	Name      string
	Email     string
	Password  string
	Role      Role
	CartData  json.RawMessage
	CreatedAt time.Time
}
