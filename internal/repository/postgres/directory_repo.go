package postgres

import (
	"context"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain/directory"
)

var _ directory.Directory = (*DirectoryRepo)(nil)

// DirectoryRepo reads the user, course and institution tables maintained by
// the platform CRUD services.
type DirectoryRepo struct{ db *DB }

func NewDirectoryRepo(db *DB) *DirectoryRepo { return &DirectoryRepo{db: db} }

const (
	qCourseMembers = `
SELECT DISTINCT m.user_id
FROM (
    SELECT cs.student_id AS user_id, 'STUDENT' AS role
    FROM course_students cs
    WHERE cs.course_id = ANY($1)
    UNION ALL
    SELECT ci.instructor_id AS user_id, 'INSTRUCTOR' AS role
    FROM course_instructors ci
    WHERE ci.course_id = ANY($1)
) m
WHERE m.role = ANY($2)
ORDER BY m.user_id;`

	qActiveUsers = `
SELECT u.id
FROM users u
WHERE u.is_active AND u.role = ANY($1)
ORDER BY u.id;`

	qActiveUsersByInstituteOrCountry = `
SELECT u.id
FROM users u
LEFT JOIN institutions i ON i.id = u.institution_id
WHERE u.is_active
  AND u.role = ANY($1)
  AND (u.institution_id = ANY($2) OR i.country = ANY($3))
ORDER BY u.id;`

	qEmailsByIDs = `
SELECT u.email
FROM users u
WHERE u.id = ANY($1) AND u.email <> ''
ORDER BY u.email;`
)

func (r *DirectoryRepo) CourseMemberIDs(ctx context.Context, courseIDs []string, roles []directory.Role) ([]string, error) {
	if len(courseIDs) == 0 || len(roles) == 0 {
		return nil, nil
	}
	return r.strings(ctx, "course members", qCourseMembers, courseIDs, roleStrings(roles))
}

func (r *DirectoryRepo) ActiveUserIDs(ctx context.Context, roles []directory.Role) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	return r.strings(ctx, "active users", qActiveUsers, roleStrings(roles))
}

func (r *DirectoryRepo) ActiveUserIDsByInstituteOrCountry(ctx context.Context, roles []directory.Role, instituteIDs, countries []string) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	return r.strings(ctx, "active users by institute or country", qActiveUsersByInstituteOrCountry,
		roleStrings(roles), textArray(instituteIDs), textArray(countries))
}

func (r *DirectoryRepo) EmailsByIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.strings(ctx, "user emails", qEmailsByIDs, ids)
}

func (r *DirectoryRepo) strings(ctx context.Context, what, q string, args ...any) ([]string, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", what, err)
	}
	return out, nil
}
