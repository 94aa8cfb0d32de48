package notifier

import (
	"context"
	"testing"

	"github.com/NordCoder/Herald/internal/domain/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolver_ReceiverIDs(t *testing.T) {
	tests := []struct {
		name string
		job  job.Job
		want []string
	}{
		{
			name: "course wins over institute and country",
			job: job.Job{
				ReceiverGroup:        job.GroupStudent,
				ReceiverCourseIDs:    []string{"c1", "c2"},
				ReceiverInstituteIDs: []string{"inst-c"},
				ReceiverCountry:      []string{"DE"},
			},
			want: []string{"s1", "s2"},
		},
		{
			name: "course members filtered by group",
			job:  job.Job{ReceiverGroup: job.GroupInstructor, ReceiverCourseIDs: []string{"c1"}},
			want: []string{"i1"},
		},
		{
			name: "no filters addresses every active member of the group",
			job:  job.Job{ReceiverGroup: job.GroupBoth},
			want: []string{"s1", "s2", "s3", "i1"},
		},
		{
			name: "institute or country",
			job: job.Job{
				ReceiverGroup:        job.GroupStudent,
				ReceiverInstituteIDs: []string{"inst-b"},
				ReceiverCountry:      []string{"PL"},
			},
			want: []string{"s1", "s2", "s3"},
		},
		{
			name: "country only",
			job:  job.Job{ReceiverGroup: job.GroupStudent, ReceiverCountry: []string{"DE"}},
			want: []string{"s2"},
		},
		{
			name: "nobody matches",
			job:  job.Job{ReceiverGroup: job.GroupInstructor, ReceiverCountry: []string{"FR"}},
			want: nil,
		},
	}

	r := NewResolver(campus(), zap.NewNop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ReceiverIDs(context.Background(), &tt.job)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_ReceiverEmails(t *testing.T) {
	r := NewResolver(campus(), zap.NewNop())

	got, err := r.ReceiverEmails(context.Background(), &job.Job{
		ReceiverGroup:     job.GroupBoth,
		ReceiverCourseIDs: []string{"c1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1@uni.test", "i1@uni.test"}, got)
}

func TestResolver_UnknownGroup(t *testing.T) {
	r := NewResolver(campus(), zap.NewNop())

	_, err := r.ReceiverIDs(context.Background(), &job.Job{ReceiverGroup: "ALUMNI"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestResolver_DirectoryError(t *testing.T) {
	dir := campus()
	dir.err = errBoom
	r := NewResolver(dir, zap.NewNop())

	_, err := r.ReceiverIDs(context.Background(), &job.Job{ReceiverGroup: job.GroupStudent})
	require.ErrorIs(t, err, errBoom)
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, dedupe([]string{"b", "a", "", "b", "c", "a"}))
	assert.Nil(t, dedupe(nil))
}
