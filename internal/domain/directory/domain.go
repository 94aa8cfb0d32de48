package directory

type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleInstructor Role = "INSTRUCTOR"
	RoleAdmin      Role = "SUPER_ADMIN"
)

type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Role          Role   `json:"role"`
	Active        bool   `json:"is_active"`
	InstitutionID string `json:"institution_id"`
}
