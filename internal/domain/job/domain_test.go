package job

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField_UnmarshalDistinguishesAbsentAndNull(t *testing.T) {
	var p Patch
	require.NoError(t, json.Unmarshal([]byte(`{"title":"x","schedule_date":null}`), &p))
	assert.False(t, p.LinkURL.Set)
	assert.True(t, p.ScheduleDate.Set)
	assert.True(t, p.ScheduleDate.Cleared())

	p = Patch{}
	require.NoError(t, json.Unmarshal([]byte(`{"schedule_date":"2030-01-02T03:04:05Z","link_url":"https://x.io"}`), &p))
	require.NotNil(t, p.ScheduleDate.Value)
	assert.False(t, p.ScheduleDate.Cleared())
	assert.Equal(t, 2030, p.ScheduleDate.Value.Year())
	assert.Equal(t, "https://x.io", *p.LinkURL.Value)

	assert.Error(t, json.Unmarshal([]byte(`{"schedule_date":"tomorrow"}`), &p))
}

func TestPatch_Apply(t *testing.T) {
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	at := now.Add(time.Hour)
	link := "https://x.io"
	base := func() *Job {
		return Draft{Title: "t", Text: "x", LinkURL: &link, ReceiverGroup: GroupStudent, ScheduleDate: &at}.Job("j", now)
	}

	tests := []struct {
		name   string
		patch  Patch
		change ScheduleChange
		check  func(t *testing.T, j *Job)
	}{
		{
			name:   "fields only",
			patch:  Patch{Title: ptr("new"), ReceiverGroup: ptr(GroupBoth), ReceiverCourseIDs: &[]string{"c1"}},
			change: ScheduleKept,
			check: func(t *testing.T, j *Job) {
				assert.Equal(t, "new", j.Title)
				assert.Equal(t, GroupBoth, j.ReceiverGroup)
				assert.Equal(t, []string{"c1"}, j.ReceiverCourseIDs)
				assert.Equal(t, &at, j.ScheduleDate)
			},
		},
		{
			name:   "same date is kept",
			patch:  Patch{ScheduleDate: Some(at)},
			change: ScheduleKept,
		},
		{
			name:   "moved",
			patch:  Patch{ScheduleDate: Some(at.Add(time.Hour))},
			change: ScheduleMoved,
			check: func(t *testing.T, j *Job) {
				assert.True(t, j.ScheduleDate.Equal(at.Add(time.Hour)))
			},
		},
		{
			name:   "cleared",
			patch:  Patch{ScheduleDate: Null[time.Time]()},
			change: ScheduleCleared,
			check: func(t *testing.T, j *Job) {
				assert.Nil(t, j.ScheduleDate)
			},
		},
		{
			name:   "link nulled and blanked",
			patch:  Patch{LinkURL: Null[string](), LinkText: Some("")},
			change: ScheduleKept,
			check: func(t *testing.T, j *Job) {
				assert.Nil(t, j.LinkURL)
				assert.Nil(t, j.LinkText)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := base()
			later := now.Add(time.Minute)
			assert.Equal(t, tt.change, tt.patch.Apply(j, later))
			assert.Equal(t, later, j.UpdatedAt)
			if tt.check != nil {
				tt.check(t, j)
			}
		})
	}
}

func TestPatch_ClearOnUnscheduledJobIsKept(t *testing.T) {
	now := time.Now()
	j := Draft{Title: "t", Text: "x", ReceiverGroup: GroupStudent}.Job("j", now)
	assert.Equal(t, ScheduleKept, Patch{ScheduleDate: Null[time.Time]()}.Apply(j, now))
	assert.Equal(t, ScheduleMoved, Patch{ScheduleDate: Some(now.Add(time.Hour))}.Apply(j, now))
}

func TestJob_Due(t *testing.T) {
	now := time.Now()
	past, future := now.Add(-time.Second), now.Add(time.Second)

	assert.True(t, (&Job{}).Due(now))
	assert.True(t, (&Job{ScheduleDate: &now}).Due(now))
	assert.True(t, (&Job{ScheduleDate: &past}).Due(now))
	assert.False(t, (&Job{ScheduleDate: &future}).Due(now))
}

func TestDraft_JobDropsBlankLinks(t *testing.T) {
	empty := ""
	j := Draft{Title: "t", Text: "x", LinkURL: &empty, ReceiverGroup: GroupInstructor}.Job("id", time.Now())
	assert.Nil(t, j.LinkURL)
	assert.False(t, j.IsSent)
	assert.True(t, GroupInstructor.Valid())
	assert.False(t, ReceiverGroup("ADMIN").Valid())
}

func ptr[T any](v T) *T { return &v }
