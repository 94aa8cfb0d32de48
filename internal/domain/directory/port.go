package directory

import "context"

// Directory is the read-only view of users, courses and institutions owned
// by the platform CRUD services.
type Directory interface {
	CourseMemberIDs(ctx context.Context, courseIDs []string, roles []Role) ([]string, error)
	ActiveUserIDs(ctx context.Context, roles []Role) ([]string, error)
	ActiveUserIDsByInstituteOrCountry(ctx context.Context, roles []Role, instituteIDs, countries []string) ([]string, error)
	EmailsByIDs(ctx context.Context, ids []string) ([]string, error)
}
