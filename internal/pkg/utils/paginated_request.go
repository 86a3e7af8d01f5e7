package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/reject"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type PageRequest struct {
	Size   int
	Token  int
	Offset int
}

// NewPageRequest reads page_size and page_token. Both are optional: the
// first page of DefaultPageSize items is returned when they are missing.
func NewPageRequest(c *gin.Context) (PageRequest, *reject.ProblemWithTrace) {
	pageSize := DefaultPageSize
	if raw := c.Query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return PageRequest{}, reject.PageProblem("page_size", err)
		}
		pageSize = size
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	pageToken := 0
	if raw := c.Query("page_token"); raw != "" {
		token, err := strconv.Atoi(raw)
		if err != nil || token < 0 {
			return PageRequest{}, reject.PageProblem("page_token", err)
		}
		pageToken = token
	}

	return PageRequest{
		Size:   pageSize,
		Token:  pageToken,
		Offset: pageSize * pageToken,
	}, nil
}

// Next returns the token of the following page, or 0 when this page is the
// last one.
func (p PageRequest) Next(total int64) int64 {
	if int64(p.Offset+p.Size) >= total {
		return 0
	}
	return int64(p.Token + 1)
}
