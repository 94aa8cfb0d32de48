package notifier

import (
	"context"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain/directory"
	"github.com/NordCoder/Herald/internal/domain/job"
	"github.com/NordCoder/Herald/internal/obs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Resolver turns a job's targeting rules into user ids. Course targeting
// wins over everything else; otherwise institutes and countries widen the
// audience, and with neither every active user of the group is addressed.
type Resolver struct {
	dir directory.Directory
	log *zap.Logger
}

func NewResolver(dir directory.Directory, log *zap.Logger) *Resolver {
	return &Resolver{dir: dir, log: log.With(zap.String("component", "notifier.resolver"))}
}

func rolesFor(g job.ReceiverGroup) ([]directory.Role, error) {
	switch g {
	case job.GroupStudent:
		return []directory.Role{directory.RoleStudent}, nil
	case job.GroupInstructor:
		return []directory.Role{directory.RoleInstructor}, nil
	case job.GroupBoth:
		return []directory.Role{directory.RoleStudent, directory.RoleInstructor}, nil
	}
	return nil, fmt.Errorf("%w: unknown receiver group %q", ErrValidation, g)
}

func (r *Resolver) ReceiverIDs(ctx context.Context, j *job.Job) ([]string, error) {
	ctx, span := otel.Tracer("notifier.resolver").Start(ctx, "resolver.receivers",
		trace.WithAttributes(
			attribute.String("job.id", j.ID),
			attribute.String("job.receiver_group", string(j.ReceiverGroup)),
		),
	)
	defer span.End()

	roles, err := rolesFor(j.ReceiverGroup)
	if err != nil {
		return nil, err
	}

	var (
		ids  []string
		rule string
	)
	switch {
	case len(j.ReceiverCourseIDs) > 0:
		rule = "course"
		ids, err = r.dir.CourseMemberIDs(ctx, j.ReceiverCourseIDs, roles)
	case len(j.ReceiverInstituteIDs) == 0 && len(j.ReceiverCountry) == 0:
		rule = "everyone"
		ids, err = r.dir.ActiveUserIDs(ctx, roles)
	default:
		rule = "institute_or_country"
		ids, err = r.dir.ActiveUserIDsByInstituteOrCountry(ctx, roles, j.ReceiverInstituteIDs, j.ReceiverCountry)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("resolve receivers (%s): %w", rule, err)
	}

	ids = dedupe(ids)
	span.SetAttributes(attribute.String("resolver.rule", rule), attribute.Int("resolver.count", len(ids)))
	if len(ids) == 0 {
		obs.WithTrace(ctx, r.log).Debug("no receivers", zap.String("job_id", j.ID), zap.String("rule", rule))
	}
	return ids, nil
}

func (r *Resolver) ReceiverEmails(ctx context.Context, j *job.Job) ([]string, error) {
	ids, err := r.ReceiverIDs(ctx, j)
	if err != nil {
		return nil, err
	}
	return r.EmailsOf(ctx, ids)
}

// EmailsOf looks up addresses for already resolved ids.
func (r *Resolver) EmailsOf(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	emails, err := r.dir.EmailsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup emails: %w", err)
	}
	return dedupe(emails), nil
}

// dedupe keeps the first occurrence of every non-empty value.
func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
