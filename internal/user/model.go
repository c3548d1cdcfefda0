package user

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is the read-only account view needed to address a customer.
type User struct {
	ID       uint
	Email    string
	Username string
	Role     Role
}
