package job

import (
	"time"
)

type ReceiverGroup string

const (
	GroupStudent    ReceiverGroup = "STUDENT"
	GroupInstructor ReceiverGroup = "INSTRUCTOR"
	GroupBoth       ReceiverGroup = "BOTH"
)

func (g ReceiverGroup) Valid() bool {
	switch g {
	case GroupStudent, GroupInstructor, GroupBoth:
		return true
	}
	return false
}

// Job is a targeting and content definition that fans out to zero or more
// inbox rows. It is mutable until IsSent flips to true.
type Job struct {
	ID                   string        `json:"id"`
	Title                string        `json:"title"`
	Text                 string        `json:"text"`
	LinkURL              *string       `json:"link_url,omitempty"`
	LinkText             *string       `json:"link_text,omitempty"`
	ReceiverGroup        ReceiverGroup `json:"receiver_group"`
	ReceiverCountry      []string      `json:"receiver_country,omitempty"`
	ReceiverInstituteIDs []string      `json:"receiver_institute_ids,omitempty"`
	ReceiverCourseIDs    []string      `json:"receiver_course_ids,omitempty"`
	ScheduleDate         *time.Time    `json:"schedule_date,omitempty"`
	SendEmail            bool          `json:"send_email"`
	IsSent               bool          `json:"is_sent"`
	QueueJobID           *string       `json:"queue_job_id,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Due reports whether the job should be delivered right away.
func (j *Job) Due(now time.Time) bool {
	return j.ScheduleDate == nil || !j.ScheduleDate.After(now)
}

type Draft struct {
	Title                string        `json:"title" validate:"required"`
	Text                 string        `json:"text" validate:"required"`
	LinkURL              *string       `json:"link_url,omitempty" validate:"omitempty,max=2048"`
	LinkText             *string       `json:"link_text,omitempty" validate:"omitempty,max=255"`
	ReceiverGroup        ReceiverGroup `json:"receiver_group" validate:"required,oneof=STUDENT INSTRUCTOR BOTH"`
	ReceiverCountry      []string      `json:"receiver_country,omitempty" validate:"omitempty,dive,required"`
	ReceiverInstituteIDs []string      `json:"receiver_institute_ids,omitempty" validate:"omitempty,dive,required"`
	ReceiverCourseIDs    []string      `json:"receiver_course_ids,omitempty" validate:"omitempty,dive,required"`
	ScheduleDate         *time.Time    `json:"schedule_date,omitempty"`
	SendEmail            bool          `json:"send_email"`
}

func (d Draft) Job(id string, now time.Time) *Job {
	return &Job{
		ID:                   id,
		Title:                d.Title,
		Text:                 d.Text,
		LinkURL:              blankToNil(d.LinkURL),
		LinkText:             blankToNil(d.LinkText),
		ReceiverGroup:        d.ReceiverGroup,
		ReceiverCountry:      d.ReceiverCountry,
		ReceiverInstituteIDs: d.ReceiverInstituteIDs,
		ReceiverCourseIDs:    d.ReceiverCourseIDs,
		ScheduleDate:         d.ScheduleDate,
		SendEmail:            d.SendEmail,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// Patch carries a partial update. Nil pointers leave the stored value as is;
// Field values distinguish "absent" from "explicitly null".
type Patch struct {
	Title                *string          `json:"title,omitempty" validate:"omitempty,min=1"`
	Text                 *string          `json:"text,omitempty" validate:"omitempty,min=1"`
	LinkURL              Field[string]    `json:"link_url"`
	LinkText             Field[string]    `json:"link_text"`
	ReceiverGroup        *ReceiverGroup   `json:"receiver_group,omitempty" validate:"omitempty,oneof=STUDENT INSTRUCTOR BOTH"`
	ReceiverCountry      *[]string        `json:"receiver_country,omitempty"`
	ReceiverInstituteIDs *[]string        `json:"receiver_institute_ids,omitempty"`
	ReceiverCourseIDs    *[]string        `json:"receiver_course_ids,omitempty"`
	ScheduleDate         Field[time.Time] `json:"schedule_date"`
	SendEmail            *bool            `json:"send_email,omitempty"`
}

// ScheduleChange describes what a patch did to the schedule.
type ScheduleChange int

const (
	ScheduleKept ScheduleChange = iota
	ScheduleMoved
	ScheduleCleared
)

// Apply writes the patch onto j and reports how the schedule changed.
func (p Patch) Apply(j *Job, now time.Time) ScheduleChange {
	if p.Title != nil {
		j.Title = *p.Title
	}
	if p.Text != nil {
		j.Text = *p.Text
	}
	if p.LinkURL.Set {
		j.LinkURL = blankToNil(p.LinkURL.Value)
	}
	if p.LinkText.Set {
		j.LinkText = blankToNil(p.LinkText.Value)
	}
	if p.ReceiverGroup != nil {
		j.ReceiverGroup = *p.ReceiverGroup
	}
	if p.ReceiverCountry != nil {
		j.ReceiverCountry = *p.ReceiverCountry
	}
	if p.ReceiverInstituteIDs != nil {
		j.ReceiverInstituteIDs = *p.ReceiverInstituteIDs
	}
	if p.ReceiverCourseIDs != nil {
		j.ReceiverCourseIDs = *p.ReceiverCourseIDs
	}
	if p.SendEmail != nil {
		j.SendEmail = *p.SendEmail
	}
	j.UpdatedAt = now

	change := ScheduleKept
	switch {
	case p.ScheduleDate.Cleared():
		if j.ScheduleDate != nil {
			change = ScheduleCleared
		}
		j.ScheduleDate = nil
	case p.ScheduleDate.Set:
		next := *p.ScheduleDate.Value
		if j.ScheduleDate == nil || !j.ScheduleDate.Equal(next) {
			change = ScheduleMoved
		}
		j.ScheduleDate = &next
	}
	return change
}

type Filter struct {
	IsSent *bool
}

func blankToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
