package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the share link id is already taken.
	ErrConflict = errors.New("conflict")
)

type ProjectStatus string

const (
	StatusPending       ProjectStatus = "Pending"
	StatusApproved      ProjectStatus = "Approved"
	StatusNeedsRevision ProjectStatus = "Needs Revision"
)

func (s ProjectStatus) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusNeedsRevision
}

// ProjectShare is a shareable AR project. Empty strings stand for absent
// optional values: no AccessCode means the share is public, no AssetRefGLB
// means the model is unavailable.
type ProjectShare struct {
	ID           string
	ShareLinkID  string
	ProductName  string
	AssetRefGLB  string
	AssetRefUSDZ string
	ThumbnailURL string
	Notes        string
	AccessCode   string
	Status       ProjectStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (p ProjectShare) HasAccessCode() bool {
	return p.AccessCode != ""
}

type FeedbackType string

const (
	FeedbackApproved      FeedbackType = "Approved"
	FeedbackNeedsRevision FeedbackType = "Needs Revision"
)

func (t FeedbackType) Valid() bool {
	return t == FeedbackApproved || t == FeedbackNeedsRevision
}

type Feedback struct {
	ID           string
	ShareLinkID  string
	FeedbackType FeedbackType
	Comment      string
	ClientName   string
	ClientEmail  string
	SubmittedAt  time.Time
}

// FeedbackEntry is a feedback row with the project it belongs to.
type FeedbackEntry struct {
	Feedback
	ProductName  string
	ThumbnailURL string
}
