package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginate(t *testing.T) {
	items := []int{5, 3, 8, 1, 9, 2}

	page := Paginate(items, ListQuery[int]{
		Less:      func(a, b int) bool { return a < b },
		PageIndex: 1,
		PageSize:  4,
	})
	assert.Equal(t, []int{8, 9}, page.Items)
	assert.Equal(t, 6, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, []int{5, 3, 8, 1, 9, 2}, items, "input must not be reordered")
}

func TestPaginateFilter(t *testing.T) {
	page := Paginate([]int{1, 2, 3, 4, 5, 6}, ListQuery[int]{
		Filter:   func(v int) bool { return v%2 == 0 },
		PageSize: 2,
	})
	assert.Equal(t, []int{2, 4}, page.Items)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
}

func TestPaginateBeyondLastPage(t *testing.T) {
	page := Paginate([]int{1, 2, 3}, ListQuery[int]{PageIndex: 4, PageSize: 2})
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
}

func TestPaginateUnbounded(t *testing.T) {
	page := Paginate([]int{1, 2, 3}, ListQuery[int]{})
	assert.Equal(t, []int{1, 2, 3}, page.Items)
	assert.Equal(t, 1, page.TotalPages)

	empty := Paginate([]int{}, ListQuery[int]{})
	assert.Empty(t, empty.Items)
	assert.Equal(t, 0, empty.TotalPages)
}
