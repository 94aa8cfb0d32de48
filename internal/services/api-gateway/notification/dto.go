package notification

import (
	"github.com/NordCoder/Herald/internal/domain/inbox"
	"github.com/NordCoder/Herald/internal/domain/paging"
)

type listQuery struct {
	Page  int `json:"page" validate:"min=1"`
	Limit int `json:"limit" validate:"min=1,max=100"`
}

type page[T any] struct {
	Data []T         `json:"data"`
	Meta paging.Meta `json:"meta"`
}

func newPage[T any](data []T, p paging.Page, total int) page[T] {
	if data == nil {
		data = []T{}
	}
	return page[T]{Data: data, Meta: p.Meta(total)}
}

type triggerRequest struct {
	Notifications []inbox.Draft `json:"notifications" validate:"required,min=1,dive"`
}

type triggerResponse struct {
	IDs []string `json:"ids"`
}

type markSeenRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}
