package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name        string
		page, per   string
		wantPage    int
		wantPerPage int
		wantErr     bool
	}{
		{"defaults", "", "", 1, 5, false},
		{"explicit", "3", "20", 3, 20, false},
		{"per page capped", "1", "1000", 1, 100, false},
		{"zero page", "0", "", 0, 0, true},
		{"non numeric", "abc", "", 0, 0, true},
		{"negative per page", "", "-1", 0, 0, true},
		{"last allowed page", "21474836", "100", 21474836, 100, false},
		{"page past offset range", "21474837", "", 0, 0, true},
		{"page overflowing int64", "9223372036854775807", "100", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePagination(tt.page, tt.per)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantPerPage, p.PerPage)
		})
	}
}

func TestPagination_TotalPages(t *testing.T) {
	p := Pagination{Page: 1, PerPage: 5}
	assert.Equal(t, 0, p.TotalPages(0))
	assert.Equal(t, 1, p.TotalPages(5))
	assert.Equal(t, 3, p.TotalPages(11))
	assert.Equal(t, 10, Pagination{Page: 3, PerPage: 5}.Offset())
}
