package search

import (
	"context"
	"time"

	"arshare/api/internal/store"
)

// Result is a single project hit returned to the producer. Access codes are
// never part of a result.
type Result struct {
	ShareLinkID   string    `json:"shareLinkId"`
	ProductName   string    `json:"productName"`
	Status        string    `json:"status"`
	ThumbnailURL  string    `json:"thumbnailUrl"`
	HasAccessCode bool      `json:"hasAccessCode"`
	CreatedAt     time.Time `json:"createdAt"`
}

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Query describes a browse or search request. An empty Text browses newest first.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Normalized applies the default page size and clamps Limit to MaxLimit.
func (q Query) Normalized() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Response is the envelope returned by the project list endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Source  string   `json:"source"`
}

// Index is a full-text project index.
type Index interface {
	Healthy() bool
	Search(q Query) ([]Result, int, error)
	IndexProjects(records []ProjectRecord) error
	DeleteProject(id string) error
}

// ProjectLister is the database fallback.
type ProjectLister interface {
	ListProjects(ctx context.Context, query string, limit, offset int) ([]store.ProjectShare, int, error)
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID            string `json:"id"`
	ProductName   string `json:"productName"`
	Status        string `json:"status"`
	ThumbnailURL  string `json:"thumbnailUrl"`
	Notes         string `json:"notes"`
	HasAccessCode bool   `json:"hasAccessCode"`
	CreatedAt     int64  `json:"createdAt"`
}

func RecordFromProject(p store.ProjectShare) ProjectRecord {
	return ProjectRecord{
		ID:            p.ShareLinkID,
		ProductName:   p.ProductName,
		Status:        string(p.Status),
		ThumbnailURL:  p.ThumbnailURL,
		Notes:         p.Notes,
		HasAccessCode: p.HasAccessCode(),
		CreatedAt:     p.CreatedAt.Unix(),
	}
}

func resultFromProject(p store.ProjectShare) Result {
	return Result{
		ShareLinkID:   p.ShareLinkID,
		ProductName:   p.ProductName,
		Status:        string(p.Status),
		ThumbnailURL:  p.ThumbnailURL,
		HasAccessCode: p.HasAccessCode(),
		CreatedAt:     p.CreatedAt,
	}
}
