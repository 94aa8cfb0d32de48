package paging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Clamps(t *testing.T) {
	assert.Equal(t, Page{Number: 1, Limit: DefaultLimit}, New(0, 0))
	assert.Equal(t, Page{Number: 3, Limit: MaxLimit}, New(3, 500))
	assert.Equal(t, 40, New(3, 20).Offset())
}

func TestMeta(t *testing.T) {
	m := New(2, 10).Meta(25)
	assert.Equal(t, Meta{
		PageSize:        10,
		TotalRows:       25,
		TotalPages:      3,
		CurrentPage:     2,
		HasNextPage:     true,
		HasPreviousPage: true,
	}, m)

	m = New(1, 10).Meta(0)
	assert.Zero(t, m.TotalPages)
	assert.False(t, m.HasNextPage)
	assert.False(t, m.HasPreviousPage)
}
