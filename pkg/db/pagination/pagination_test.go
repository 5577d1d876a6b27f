package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, Pagination{Page: 1, Limit: DefaultLimit}, Normalize(Pagination{}))
	assert.Equal(t, Pagination{Page: 3, Limit: MaxLimit}, Normalize(Pagination{Page: 3, Limit: 10_000}))
	assert.Equal(t, 40, Pagination{Page: 3, Limit: 20}.Offset())
}

func TestBuildPageInfo(t *testing.T) {
	info := BuildPageInfo(Pagination{Page: 1, Limit: 2}, 5)
	assert.Equal(t, 3, info.TotalPages)
	assert.True(t, info.HasMore)

	last := BuildPageInfo(Pagination{Page: 3, Limit: 2}, 5)
	assert.False(t, last.HasMore)

	empty := BuildPageInfo(Pagination{Page: 1, Limit: 10}, 0)
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasMore)
}
