// Package audit reads back the audit trail written by shared.AuditLogger.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultPageSize applies when the caller asks for none.
	DefaultPageSize = 20
	// MaxPageSize caps a single page.
	MaxPageSize = 50
	// MaxExportRows caps an export.
	MaxExportRows = 10000
	// MaxPage bounds the page number so its offset stays in range.
	MaxPage = 100000
)

// Query is the repository-level form of TimelineFilters. Limit 0 means no limit.
type Query struct {
	From   time.Time
	To     time.Time
	Actor  string
	Entity string
	Action string
	Offset int
	Limit  int
}

// Repository fetches audit rows newest first.
type Repository interface {
	Window(ctx context.Context, q Query) ([]Entry, error)
}

// Service pages through the audit trail.
type Service struct {
	repo Repository
}

// NewService creates an audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page. One extra row is fetched to learn whether a
// next page exists.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	q := query(filters)
	q.Offset = (page - 1) * pageSize
	q.Limit = pageSize + 1
	entries, err := s.repo.Window(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	if entries == nil {
		entries = []Entry{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Entries: entries, Paging: paging}, nil
}

// Export returns every matching entry up to MaxExportRows.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	q := query(filters)
	q.Limit = MaxExportRows
	return s.repo.Window(ctx, q)
}

func query(f TimelineFilters) Query {
	return Query{
		From:   f.From,
		To:     f.To,
		Actor:  strings.TrimSpace(f.Actor),
		Entity: strings.TrimSpace(f.Entity),
		Action: strings.TrimSpace(f.Action),
	}
}
