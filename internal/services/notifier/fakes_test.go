package notifier

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/NordCoder/Herald/internal/domain/directory"
	"github.com/NordCoder/Herald/internal/domain/events"
	"github.com/NordCoder/Herald/internal/domain/inbox"
	"github.com/NordCoder/Herald/internal/domain/job"
	"github.com/NordCoder/Herald/internal/domain/mail"
	"github.com/NordCoder/Herald/internal/domain/paging"
	"github.com/NordCoder/Herald/internal/domain/queue"
)

type memTask struct {
	kind    queue.Kind
	payload []byte
	delay   time.Duration
	running bool
}

// mem is an in-memory stand-in for the postgres repos. WithTx snapshots
// the whole state and restores it when fn fails.
type mem struct {
	mu    sync.Mutex
	jobs  map[string]job.Job
	rows  map[string]inbox.Notification
	tasks map[string]*memTask
	seq   int

	enqueueErr error
	bulkErr    error
}

func newMem() *mem {
	return &mem{
		jobs:  map[string]job.Job{},
		rows:  map[string]inbox.Notification{},
		tasks: map[string]*memTask{},
	}
}

func (m *mem) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	jobs := maps.Clone(m.jobs)
	rows := maps.Clone(m.rows)
	tasks := make(map[string]*memTask, len(m.tasks))
	for k, v := range m.tasks {
		cp := *v
		tasks[k] = &cp
	}
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.jobs, m.rows, m.tasks = jobs, rows, tasks
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *mem) rowsFor(jobID string) []inbox.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []inbox.Notification
	for _, r := range m.rows {
		if r.NotificationID != nil && *r.NotificationID == jobID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UserID < out[k].UserID })
	return out
}

func (m *mem) task(handle string) (memTask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[handle]
	if !ok {
		return memTask{}, false
	}
	return *t, true
}

func (m *mem) onlyTask() (string, memTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tasks {
		return id, *t
	}
	return "", memTask{}
}

type taskRef struct {
	handle string
	memTask
}

// tasksOf returns the tasks of one kind in enqueue order.
func (m *mem) tasksOf(kind queue.Kind) []taskRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []taskRef
	for id, t := range m.tasks {
		if t.kind == kind {
			out = append(out, taskRef{handle: id, memTask: *t})
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].handle < out[k].handle })
	return out
}

func (m *mem) drop(handle string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, handle)
}

type memJobs struct{ *mem }

func (r memJobs) Create(_ context.Context, j *job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; ok {
		return fmt.Errorf("duplicate job %s", j.ID)
	}
	r.jobs[j.ID] = *j
	return nil
}

func (r memJobs) GetByID(_ context.Context, id string) (*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}
	return &j, nil
}

func (r memJobs) guard(id string) error {
	j, ok := r.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	if j.IsSent {
		return job.ErrAlreadySent
	}
	return nil
}

func (r memJobs) Update(_ context.Context, j *job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.guard(j.ID); err != nil {
		return err
	}
	cp := *j
	cp.IsSent = false
	r.jobs[j.ID] = cp
	return nil
}

func (r memJobs) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.guard(id); err != nil {
		return err
	}
	delete(r.jobs, id)
	return nil
}

func (r memJobs) MarkSent(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.IsSent {
		return false, nil
	}
	j.IsSent = true
	r.jobs[id] = j
	return true, nil
}

func (r memJobs) SetQueueJobID(_ context.Context, id, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	j.QueueJobID = &handle
	r.jobs[id] = j
	return nil
}

func (r memJobs) List(_ context.Context, f job.Filter, p paging.Page) ([]*job.Job, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*job.Job
	for _, j := range r.jobs {
		if f.IsSent != nil && j.IsSent != *f.IsSent {
			continue
		}
		all = append(all, &j)
	}
	sort.Slice(all, func(i, k int) bool {
		if all[i].CreatedAt.Equal(all[k].CreatedAt) {
			return all[i].ID < all[k].ID
		}
		return all[i].CreatedAt.After(all[k].CreatedAt)
	})
	lo := min(p.Offset(), len(all))
	hi := min(lo+p.Limit, len(all))
	return all[lo:hi], len(all), nil
}

type memInbox struct{ *mem }

func (r memInbox) BulkCreate(_ context.Context, rows []*inbox.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bulkErr != nil {
		return r.bulkErr
	}
	for _, n := range rows {
		if _, ok := r.rows[n.ID]; ok {
			continue
		}
		r.rows[n.ID] = *n
	}
	return nil
}

func (r memInbox) Get(_ context.Context, id string) (*inbox.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok {
		return nil, inbox.ErrNotFound
	}
	return &n, nil
}

func (r memInbox) MarkSeen(_ context.Context, ids []string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		row, ok := r.rows[id]
		if !ok {
			continue
		}
		if row.SeenAt == nil {
			row.SeenAt = &at
		}
		if row.LinkURL == nil && row.ReadAt == nil {
			row.ReadAt = &at
		}
		r.rows[id] = row
		n++
	}
	return n, nil
}

func (r memInbox) MarkRead(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return inbox.ErrNotFound
	}
	if row.ReadAt == nil {
		row.ReadAt = &at
	}
	if row.SeenAt == nil {
		row.SeenAt = &at
	}
	r.rows[id] = row
	return nil
}

func (r memInbox) ListByUser(_ context.Context, userID string, p paging.Page) ([]*inbox.Notification, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*inbox.Notification
	for _, n := range r.rows {
		if n.UserID == userID {
			all = append(all, &n)
		}
	}
	sort.Slice(all, func(i, k int) bool { return all[i].ID < all[k].ID })
	lo := min(p.Offset(), len(all))
	hi := min(lo+p.Limit, len(all))
	return all[lo:hi], len(all), nil
}

type memQueue struct{ *mem }

func (q memQueue) Enqueue(_ context.Context, kind queue.Kind, payload []byte, delay time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return "", q.enqueueErr
	}
	q.seq++
	id := fmt.Sprintf("task-%03d", q.seq)
	q.tasks[id] = &memTask{kind: kind, payload: payload, delay: delay}
	return id, nil
}

func (q memQueue) pending(handle string) (*memTask, error) {
	t, ok := q.tasks[handle]
	if !ok || t.running {
		return nil, queue.ErrTaskNotPending
	}
	return t, nil
}

func (q memQueue) ChangeDelay(_ context.Context, handle string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, err := q.pending(handle)
	if err != nil {
		return err
	}
	t.delay = delay
	return nil
}

func (q memQueue) Remove(_ context.Context, handle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := q.pending(handle); err != nil {
		return err
	}
	delete(q.tasks, handle)
	return nil
}

func (q memQueue) UpdatePayload(_ context.Context, handle string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, err := q.pending(handle)
	if err != nil {
		return err
	}
	t.payload = payload
	return nil
}

type fakeDir struct {
	users     []directory.User
	countries map[string]string
	courses   map[string][]string
	err       error
	emailErr  error
}

func (d *fakeDir) user(id string) (directory.User, bool) {
	for _, u := range d.users {
		if u.ID == id {
			return u, true
		}
	}
	return directory.User{}, false
}

func (d *fakeDir) CourseMemberIDs(_ context.Context, courseIDs []string, roles []directory.Role) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []string
	for _, c := range courseIDs {
		for _, id := range d.courses[c] {
			if u, ok := d.user(id); ok && slices.Contains(roles, u.Role) {
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (d *fakeDir) ActiveUserIDs(_ context.Context, roles []directory.Role) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []string
	for _, u := range d.users {
		if u.Active && slices.Contains(roles, u.Role) {
			out = append(out, u.ID)
		}
	}
	return out, nil
}

func (d *fakeDir) ActiveUserIDsByInstituteOrCountry(_ context.Context, roles []directory.Role, instituteIDs, countries []string) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []string
	for _, u := range d.users {
		if !u.Active || !slices.Contains(roles, u.Role) {
			continue
		}
		if slices.Contains(instituteIDs, u.InstitutionID) || slices.Contains(countries, d.countries[u.InstitutionID]) {
			out = append(out, u.ID)
		}
	}
	return out, nil
}

func (d *fakeDir) EmailsByIDs(_ context.Context, ids []string) ([]string, error) {
	if d.emailErr != nil {
		return nil, d.emailErr
	}
	var out []string
	for _, id := range ids {
		if u, ok := d.user(id); ok {
			out = append(out, u.Email)
		}
	}
	return out, nil
}

type fakeSender struct {
	mu      sync.Mutex
	batches [][]string
	subject string
	html    string
	err     error
	// reject fails single addresses while the rest of the batch goes out.
	reject map[string]error
}

var _ mail.Sender = (*fakeSender)(nil)

func (s *fakeSender) SendOne(ctx context.Context, to, subject, html string, _ ...mail.Attachment) error {
	return s.SendBatch(ctx, []string{to}, subject, html)
}

func (s *fakeSender) SendBatch(_ context.Context, to []string, subject, html string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	var ok []string
	be := &mail.BatchError{}
	for _, rcpt := range to {
		if err, bad := s.reject[rcpt]; bad {
			be.Failed = append(be.Failed, mail.RecipientError{To: rcpt, Err: err})
			continue
		}
		ok = append(ok, rcpt)
	}
	if len(ok) > 0 {
		s.batches = append(s.batches, ok)
	}
	s.subject, s.html = subject, html
	if len(be.Failed) > 0 {
		return be
	}
	return nil
}

func (s *fakeSender) sent() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.batches)
}

type fakeEvents struct {
	mu  sync.Mutex
	evs []events.DeliveryEvent
	err error
}

func (f *fakeEvents) PublishDelivered(_ context.Context, ev events.DeliveryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evs = append(f.evs, ev)
	return f.err
}

func (f *fakeEvents) published() []events.DeliveryEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.evs)
}

var errBoom = errors.New("boom")

func campus() *fakeDir {
	return &fakeDir{
		users: []directory.User{
			{ID: "s1", Email: "s1@uni.test", Role: directory.RoleStudent, Active: true, InstitutionID: "inst-a"},
			{ID: "s2", Email: "s2@uni.test", Role: directory.RoleStudent, Active: true, InstitutionID: "inst-b"},
			{ID: "s3", Email: "s3@uni.test", Role: directory.RoleStudent, Active: true, InstitutionID: "inst-c"},
			{ID: "s4", Email: "s4@uni.test", Role: directory.RoleStudent, Active: false, InstitutionID: "inst-a"},
			{ID: "i1", Email: "i1@uni.test", Role: directory.RoleInstructor, Active: true, InstitutionID: "inst-a"},
			{ID: "adm", Email: "adm@uni.test", Role: directory.RoleAdmin, Active: true, InstitutionID: "inst-a"},
		},
		countries: map[string]string{"inst-a": "PL", "inst-b": "DE", "inst-c": "PL"},
		courses: map[string][]string{
			"c1": {"s1", "i1"},
			"c2": {"s1", "s2"},
		},
	}
}
