// Package resolver maps a share link id to its project record.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"arshare/api/internal/store"
)

var (
	// ErrNotFound means no project carries the share link id.
	ErrNotFound = errors.New("project not found")
	// ErrLoadFailure means the project store could not answer. Callers that
	// only care about "can this be shown" may treat it like ErrNotFound.
	ErrLoadFailure = errors.New("project could not be loaded")
)

type projectStore interface {
	GetProjectByShareLinkID(context.Context, string) (store.ProjectShare, error)
}

type Resolver struct {
	store projectStore
}

func New(projects projectStore) *Resolver {
	return &Resolver{store: projects}
}

// Resolve performs a single store read. Every failure is classified as either
// ErrNotFound or ErrLoadFailure; the cause stays in the error chain.
func (r *Resolver) Resolve(ctx context.Context, shareLinkID string) (store.ProjectShare, error) {
	id := strings.TrimSpace(shareLinkID)
	if id == "" {
		return store.ProjectShare{}, ErrNotFound
	}
	project, err := r.store.GetProjectByShareLinkID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.ProjectShare{}, ErrNotFound
	}
	if err != nil {
		return store.ProjectShare{}, fmt.Errorf("%w: %w", ErrLoadFailure, err)
	}
	return project, nil
}
