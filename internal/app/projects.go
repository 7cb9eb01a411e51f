package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"arshare/api/internal/auth"
	"arshare/api/internal/idgen"
	"arshare/api/internal/qr"
	"arshare/api/internal/search"
	"arshare/api/internal/store"
)

const shareLinkAttempts = 3

type CreateProjectInput struct {
	ProductName  string `json:"productName"`
	GLBURL       string `json:"glbUrl"`
	USDZURL      string `json:"usdzUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Notes        string `json:"notes"`
	Status       string `json:"status"`
	AccessCode   string `json:"accessCode"`
	// Public skips the access code entirely.
	Public bool `json:"public"`
}

type CreatedProject struct {
	Project    ProjectView `json:"project"`
	AccessCode string      `json:"accessCode,omitempty"`
	PreviewURL string      `json:"previewUrl"`
}

// CheckAdmin verifies a producer bearer token.
func (s *Service) CheckAdmin(token string) error {
	return auth.CheckAdminToken(s.cfg.AdminTokenHash, token)
}

// CreateProject stores a new share with a fresh share link id. Unless the
// share is public, a missing access code is generated.
func (s *Service) CreateProject(ctx context.Context, input CreateProjectInput) (CreatedProject, error) {
	project := store.ProjectShare{
		ProductName:  strings.TrimSpace(input.ProductName),
		AssetRefGLB:  strings.TrimSpace(input.GLBURL),
		AssetRefUSDZ: strings.TrimSpace(input.USDZURL),
		ThumbnailURL: strings.TrimSpace(input.ThumbnailURL),
		Notes:        strings.TrimSpace(input.Notes),
		Status:       store.ProjectStatus(strings.TrimSpace(input.Status)),
	}
	if project.Status == "" {
		project.Status = store.StatusPending
	}
	if err := validateProject(project); err != nil {
		return CreatedProject{}, err
	}

	if !input.Public {
		code := strings.ToUpper(strings.TrimSpace(input.AccessCode))
		if code == "" {
			generated, err := idgen.AccessCode()
			if err != nil {
				return CreatedProject{}, err
			}
			code = generated
		}
		if !idgen.ValidAccessCode(code) {
			return CreatedProject{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
				fmt.Sprintf("accessCode must be 1 to %d letters or digits", idgen.MaxAccessCodeLength), nil)
		}
		project.AccessCode = code
	}

	var created store.ProjectShare
	for attempt := 0; ; attempt++ {
		id, err := idgen.ShareLinkID()
		if err != nil {
			return CreatedProject{}, err
		}
		project.ShareLinkID = id
		created, err = s.store.InsertProject(ctx, project)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) || attempt+1 >= shareLinkAttempts {
			return CreatedProject{}, err
		}
		s.logger.Debug().Str("share_link_id", id).Msg("projects: share link id taken, retrying")
	}

	s.search.IndexProject(search.RecordFromProject(created))
	s.logger.Info().Str("share_link_id", created.ShareLinkID).Bool("protected", created.HasAccessCode()).Msg("projects: created")

	return CreatedProject{
		Project: ProjectView{
			ShareLinkID:  created.ShareLinkID,
			ProductName:  created.ProductName,
			GLBURL:       created.AssetRefGLB,
			USDZURL:      created.AssetRefUSDZ,
			ThumbnailURL: created.ThumbnailURL,
			Notes:        created.Notes,
			Status:       string(created.Status),
			Protected:    created.HasAccessCode(),
		},
		AccessCode: created.AccessCode,
		PreviewURL: qr.BuildTargetURL(s.cfg.PublicBaseURL, s.cfg.PreviewPath, created.ShareLinkID, "", nil),
	}, nil
}

func validateProject(project store.ProjectShare) error {
	switch {
	case project.ProductName == "":
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "productName is required", nil)
	case project.AssetRefGLB == "":
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "glbUrl is required", nil)
	case project.ThumbnailURL == "":
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "thumbnailUrl is required", nil)
	case !project.Status.Valid():
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be Pending, Approved or Needs Revision", nil)
	}
	return nil
}

// ListProjects browses or searches shares for the producer dashboard.
func (s *Service) ListProjects(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q.Normalized())
}

// DeleteProject removes a share and, through the database cascade, all of
// its feedback. The search index drops it in the background.
func (s *Service) DeleteProject(ctx context.Context, shareLinkID string) error {
	shareLinkID = strings.TrimSpace(shareLinkID)
	if shareLinkID == "" {
		return errMissingID
	}
	if err := s.store.DeleteProject(ctx, shareLinkID); err != nil {
		return err
	}
	s.search.DeleteProject(shareLinkID)
	s.logger.Info().Str("share_link_id", shareLinkID).Msg("projects: deleted")
	return nil
}

type FeedbackView struct {
	ID           string    `json:"id"`
	ShareLinkID  string    `json:"shareLinkId"`
	ProductName  string    `json:"productName"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	FeedbackType string    `json:"feedbackType"`
	Comment      string    `json:"comment,omitempty"`
	ClientName   string    `json:"clientName,omitempty"`
	ClientEmail  string    `json:"clientEmail,omitempty"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

type FeedbackList struct {
	Results []FeedbackView `json:"results"`
	Total   int            `json:"total"`
}

// ListFeedback pages through client feedback newest first. A blank
// shareLinkID covers every project.
func (s *Service) ListFeedback(ctx context.Context, shareLinkID string, limit, offset int) (FeedbackList, error) {
	page := search.Query{Limit: limit, Offset: offset}.Normalized()
	entries, total, err := s.store.ListFeedback(ctx, strings.TrimSpace(shareLinkID), page.Limit, page.Offset)
	if err != nil {
		return FeedbackList{}, err
	}
	list := FeedbackList{Results: make([]FeedbackView, 0, len(entries)), Total: total}
	for _, entry := range entries {
		list.Results = append(list.Results, FeedbackView{
			ID:           entry.ID,
			ShareLinkID:  entry.ShareLinkID,
			ProductName:  entry.ProductName,
			ThumbnailURL: entry.ThumbnailURL,
			FeedbackType: string(entry.FeedbackType),
			Comment:      entry.Comment,
			ClientName:   entry.ClientName,
			ClientEmail:  entry.ClientEmail,
			SubmittedAt:  entry.SubmittedAt,
		})
	}
	return list, nil
}
