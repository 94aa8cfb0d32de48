package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/NordCoder/Herald/internal/domain/inbox"
	"github.com/NordCoder/Herald/internal/domain/job"
	"github.com/NordCoder/Herald/internal/domain/paging"
	"github.com/NordCoder/Herald/internal/obs"
	"github.com/NordCoder/Herald/internal/pkg/validate"
	"github.com/NordCoder/Herald/internal/services/notifier"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

type Engine interface {
	Create(ctx context.Context, d job.Draft) (*job.Job, error)
	Get(ctx context.Context, id string) (*job.Job, error)
	List(ctx context.Context, f job.Filter, p paging.Page) ([]*job.Job, int, error)
	Update(ctx context.Context, id string, p job.Patch) (*job.Job, error)
	Remove(ctx context.Context, id string) error
	Trigger(ctx context.Context, drafts []inbox.Draft) ([]string, error)
	MarkSeen(ctx context.Context, ids []string) (bool, error)
	MarkRead(ctx context.Context, id string) (bool, error)
	ListUserNotifications(ctx context.Context, userID string, p paging.Page) ([]*inbox.Notification, int, error)
}

type Controller struct {
	log *zap.Logger
	eng Engine
}

func NewController(log *zap.Logger, eng Engine) *Controller {
	return &Controller{log: log.With(zap.String("component", "api.notification")), eng: eng}
}

func (c *Controller) Register(mux *runtime.ServeMux) error {
	routes := []struct {
		method, path string
		h            runtime.HandlerFunc
	}{
		{http.MethodPost, "/v1/jobs", c.createJob},
		{http.MethodGet, "/v1/jobs", c.listJobs},
		{http.MethodGet, "/v1/jobs/{id}", c.getJob},
		{http.MethodPatch, "/v1/jobs/{id}", c.updateJob},
		{http.MethodDelete, "/v1/jobs/{id}", c.deleteJob},
		{http.MethodPost, "/v1/inbox", c.trigger},
		{http.MethodPost, "/v1/inbox/seen", c.markSeen},
		{http.MethodPost, "/v1/inbox/{id}/read", c.markRead},
		{http.MethodGet, "/v1/users/{user_id}/inbox", c.listUserInbox},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.path, r.h); err != nil {
			return fmt.Errorf("register %s %s: %w", r.method, r.path, err)
		}
	}
	return nil
}

func (c *Controller) createJob(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var d job.Draft
	if !c.decode(w, r, &d) {
		return
	}
	c.logger(r).Info("CreateJob request", zap.String("group", string(d.ReceiverGroup)), zap.Bool("scheduled", d.ScheduleDate != nil))

	j, err := c.eng.Create(r.Context(), d)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (c *Controller) listJobs(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	p, ok := c.page(w, r)
	if !ok {
		return
	}
	var f job.Filter
	if raw := r.URL.Query().Get("is_sent"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "is_sent must be a boolean")
			return
		}
		f.IsSent = &v
	}

	list, total, err := c.eng.List(r.Context(), f, p)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(list, p, total))
}

func (c *Controller) getJob(w http.ResponseWriter, r *http.Request, params map[string]string) {
	j, err := c.eng.Get(r.Context(), params["id"])
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (c *Controller) updateJob(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var p job.Patch
	if !c.decode(w, r, &p) {
		return
	}
	c.logger(r).Info("UpdateJob request", zap.String("id", params["id"]), zap.Bool("schedule_touched", p.ScheduleDate.Set))

	j, err := c.eng.Update(r.Context(), params["id"], p)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (c *Controller) deleteJob(w http.ResponseWriter, r *http.Request, params map[string]string) {
	c.logger(r).Info("DeleteJob request", zap.String("id", params["id"]))

	if err := c.eng.Remove(r.Context(), params["id"]); err != nil {
		c.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) trigger(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req triggerRequest
	if !c.decode(w, r, &req) {
		return
	}
	ids, err := c.eng.Trigger(r.Context(), req.Notifications)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, triggerResponse{IDs: ids})
}

func (c *Controller) markSeen(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req markSeenRequest
	if !c.decode(w, r, &req) {
		return
	}
	ok, err := c.eng.MarkSeen(r.Context(), req.IDs)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func (c *Controller) markRead(w http.ResponseWriter, r *http.Request, params map[string]string) {
	ok, err := c.eng.MarkRead(r.Context(), params["id"])
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: ok})
}

func (c *Controller) listUserInbox(w http.ResponseWriter, r *http.Request, params map[string]string) {
	p, ok := c.page(w, r)
	if !ok {
		return
	}
	list, total, err := c.eng.ListUserNotifications(r.Context(), params["user_id"], p)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(list, p, total))
}

func (c *Controller) page(w http.ResponseWriter, r *http.Request) (paging.Page, bool) {
	q := listQuery{Page: 1, Limit: paging.DefaultLimit}
	for key, dst := range map[string]*int{"page": &q.Page, "limit": &q.Limit} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, key+" must be an integer")
			return paging.Page{}, false
		}
		*dst = v
	}
	if err := validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return paging.Page{}, false
	}
	return paging.New(q.Page, q.Limit), true
}

func (c *Controller) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (c *Controller) logger(r *http.Request) *zap.Logger {
	return obs.WithTrace(r.Context(), c.log)
}

func (c *Controller) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		c.logger(r).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, notifier.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, notifier.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, notifier.ErrInvalidOperation), errors.Is(err, notifier.ErrValidation):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
