package search

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

const (
	SourceIndex    = "meilisearch"
	SourceDatabase = "postgres"

	reindexPage = 200
)

// Service is the facade that tries the index first and falls back to PostgreSQL.
type Service struct {
	index    Index
	projects ProjectLister
	logger   zerolog.Logger
}

// NewService creates a search service. index may be nil if Meilisearch is not configured.
func NewService(index Index, projects ProjectLister, logger zerolog.Logger) *Service {
	return &Service{index: index, projects: projects, logger: logger}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to PostgreSQL.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q = q.Normalized()
	if s.indexReady() {
		results, total, err := s.index.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: SourceIndex}
		}
		s.logger.Warn().Err(err).Msg("search: meilisearch error, falling back to postgres")
	}

	projects, total, err := s.projects.ListProjects(ctx, q.Text, q.Limit, q.Offset)
	if err != nil {
		s.logger.Error().Err(err).Msg("search: postgres fallback failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Source: SourceDatabase}
	}
	results := make([]Result, 0, len(projects))
	for _, p := range projects {
		results = append(results, resultFromProject(p))
	}
	return Response{Results: results, Total: total, Query: q.Text, Source: SourceDatabase}
}

// IndexProject indexes a project (fire-and-forget to Meilisearch).
func (s *Service) IndexProject(record ProjectRecord) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := s.index.IndexProjects([]ProjectRecord{record}); err != nil {
			s.logger.Warn().Err(err).Str("share_link_id", record.ID).Msg("search: index project")
		}
	}()
}

// IndexProjectSync indexes a project and waits for Meilisearch to accept it.
// Short-lived processes use it so the write is not lost on exit.
func (s *Service) IndexProjectSync(record ProjectRecord) error {
	if !s.indexReady() {
		return nil
	}
	if err := s.index.IndexProjects([]ProjectRecord{record}); err != nil {
		return fmt.Errorf("index project %s: %w", record.ID, err)
	}
	return nil
}

// DeleteProject removes a project from the search index (fire-and-forget).
func (s *Service) DeleteProject(id string) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := s.index.DeleteProject(id); err != nil {
			s.logger.Warn().Err(err).Str("share_link_id", id).Msg("search: delete project")
		}
	}()
}

// ReindexAllFromPG pages through every project in PostgreSQL and pushes it to
// Meilisearch. Called at startup.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.indexReady() {
		return
	}
	offset := 0
	for {
		projects, total, err := s.projects.ListProjects(ctx, "", reindexPage, offset)
		if err != nil {
			s.logger.Warn().Err(err).Msg("search: reindex load failed")
			return
		}
		if len(projects) == 0 {
			return
		}
		records := make([]ProjectRecord, 0, len(projects))
		for _, p := range projects {
			records = append(records, RecordFromProject(p))
		}
		if err := s.index.IndexProjects(records); err != nil {
			s.logger.Warn().Err(err).Msg("search: reindex projects")
			return
		}
		offset += len(projects)
		if offset >= total {
			return
		}
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
