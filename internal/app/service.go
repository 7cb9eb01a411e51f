package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"arshare/api/internal/auth"
	"arshare/api/internal/bypass"
	"arshare/api/internal/config"
	"arshare/api/internal/email"
	"arshare/api/internal/gate"
	"arshare/api/internal/grant"
	"arshare/api/internal/idgen"
	"arshare/api/internal/launch"
	"arshare/api/internal/metrics"
	"arshare/api/internal/platform"
	"arshare/api/internal/qr"
	"arshare/api/internal/resolver"
	"arshare/api/internal/search"
	"arshare/api/internal/store"
)

// ErrStaleSession means a view session ended before its record arrived. The
// late result is dropped and the gate is left untouched.
var ErrStaleSession = errors.New("view session closed")

const deviceTokenTTL = 365 * 24 * time.Hour

// Store is the persistence the service needs. *store.PostgresStore implements it.
type Store interface {
	GetProjectByShareLinkID(context.Context, string) (store.ProjectShare, error)
	InsertProject(context.Context, store.ProjectShare) (store.ProjectShare, error)
	ListProjects(context.Context, string, int, int) ([]store.ProjectShare, int, error)
	InsertFeedback(context.Context, store.Feedback) (store.Feedback, error)
	ListFeedback(context.Context, string, int, int) ([]store.FeedbackEntry, int, error)
	DeleteProject(context.Context, string) error
	Ping(context.Context) error
}

type projectSearch interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexProject(record search.ProjectRecord)
	DeleteProject(id string)
}

type feedbackNotifier interface {
	SendFeedbackNotification(data email.FeedbackData) error
}

type Service struct {
	cfg      config.Config
	store    Store
	resolver *resolver.Resolver
	grants   grant.Devices
	search   projectSearch
	notifier feedbackNotifier
	metrics  *metrics.Metrics
	qr       *qr.Generator
	logger   zerolog.Logger
}

func New(cfg config.Config, dataStore Store, grants grant.Devices, searchService projectSearch, logger zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		resolver: resolver.New(dataStore),
		grants:   grants,
		search:   searchService,
		qr:       qr.NewGenerator(cfg.PublicBaseURL, cfg.PreviewPath),
		logger:   logger,
	}
}

// WithNotifier makes the service email producers about new feedback.
func (s *Service) WithNotifier(notifier feedbackNotifier) *Service {
	s.notifier = notifier
	return s
}

func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// PreviewRequest is what a visitor's request carries into a view session.
type PreviewRequest struct {
	DeviceID    string
	ShareLinkID string
	AccessToken string
	UserAgent   string
}

type ProjectView struct {
	ShareLinkID  string `json:"shareLinkId"`
	ProductName  string `json:"productName"`
	GLBURL       string `json:"glbUrl,omitempty"`
	USDZURL      string `json:"usdzUrl,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Notes        string `json:"notes,omitempty"`
	Status       string `json:"status"`
	Protected    bool   `json:"protected"`
}

type LaunchView struct {
	Kind       string `json:"kind"`
	URI        string `json:"uri,omitempty"`
	Reason     string `json:"reason,omitempty"`
	QRRequired bool   `json:"qrRequired"`
}

type QRView struct {
	TargetURL string `json:"targetUrl"`
	ImageURL  string `json:"imageUrl"`
}

type Preview struct {
	State          string                  `json:"state"`
	ShareLinkID    string                  `json:"shareLinkId"`
	Platform       platform.Classification `json:"platform"`
	UnlockedVia    string                  `json:"unlockedVia,omitempty"`
	Prompt         *gate.Prompt            `json:"prompt,omitempty"`
	Project        *ProjectView            `json:"project,omitempty"`
	Launch         *LaunchView             `json:"launch,omitempty"`
	QR             *QRView                 `json:"qr,omitempty"`
	ModelAvailable bool                    `json:"modelAvailable"`
}

// viewSession is one visitor looking at one share. It owns the gate for that
// visit and refuses to touch it once the session has ended.
type viewSession struct {
	ctx      context.Context
	closed   atomic.Bool
	req      PreviewRequest
	platform platform.Classification
	grants   grant.KV
	gate     *gate.Gate
	record   store.ProjectShare
}

func (s *Service) openSession(ctx context.Context, req PreviewRequest) (*viewSession, error) {
	req.ShareLinkID = strings.TrimSpace(req.ShareLinkID)
	if req.ShareLinkID == "" {
		return nil, errMissingID
	}
	kv := s.grants.ForDevice(req.DeviceID)
	return &viewSession{
		ctx:      ctx,
		req:      req,
		platform: platform.Detect(req.UserAgent),
		grants:   kv,
		gate:     gate.New(req.ShareLinkID, kv, bypass.Default),
	}, nil
}

func (v *viewSession) Close() {
	v.closed.Store(true)
}

func (v *viewSession) stale() bool {
	return v.closed.Load() || v.ctx.Err() != nil
}

// load fetches the record and runs the gate check on it.
func (s *Service) load(v *viewSession) error {
	v.gate.Begin()

	fetchCtx, cancel := context.WithTimeout(v.ctx, s.cfg.FetchTimeout)
	record, err := s.resolver.Resolve(fetchCtx, v.req.ShareLinkID)
	cancel()

	if v.stale() {
		return ErrStaleSession
	}
	if err != nil {
		if errors.Is(err, resolver.ErrLoadFailure) {
			s.logger.Error().Err(err).Str("share_link_id", v.req.ShareLinkID).Msg("preview: project load failed")
		}
		return err
	}
	v.record = record

	if _, err := v.gate.Check(v.ctx, record, v.req.AccessToken); err != nil {
		return err
	}
	if grantErr := v.gate.GrantErr(); grantErr != nil {
		s.metrics.GrantStoreError("get")
		s.logger.Warn().Err(grantErr).Str("share_link_id", v.req.ShareLinkID).Msg("preview: grant lookup failed")
	}
	return nil
}

func (s *Service) runSession(ctx context.Context, req PreviewRequest) (*viewSession, error) {
	v, err := s.openSession(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.load(v); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

// OpenPreview runs one view session: detect the platform, resolve the share
// and decide access. A locked share only reveals the prompt.
func (s *Service) OpenPreview(ctx context.Context, req PreviewRequest) (Preview, error) {
	v, err := s.runSession(ctx, req)
	if err != nil {
		return Preview{}, err
	}
	defer v.Close()
	return s.buildPreview(v), nil
}

// SubmitAccessCode handles a manual code entry for a locked share.
func (s *Service) SubmitAccessCode(ctx context.Context, req PreviewRequest, code string) (Preview, error) {
	req.AccessToken = ""
	v, err := s.runSession(ctx, req)
	if err != nil {
		return Preview{}, err
	}
	defer v.Close()

	if _, err := v.gate.Submit(ctx, code); err != nil {
		if errors.Is(err, gate.ErrInvalidAccessCode) {
			s.metrics.AccessAttempt(false)
		}
		if !errors.Is(err, gate.ErrGrantNotSaved) {
			return Preview{}, err
		}
		s.metrics.AccessAttempt(true)
		s.metrics.GrantStoreError("set")
		s.logger.Warn().Err(err).Str("share_link_id", req.ShareLinkID).Msg("preview: unlocked but grant not persisted")
	} else if v.gate.Via() == gate.UnlockManual {
		s.metrics.AccessAttempt(true)
	}
	return s.buildPreview(v), nil
}

// ClearGrant forgets the device's grant for a share.
func (s *Service) ClearGrant(ctx context.Context, deviceID, shareLinkID string) error {
	shareLinkID = strings.TrimSpace(shareLinkID)
	if shareLinkID == "" {
		return errMissingID
	}
	if err := s.grants.ForDevice(deviceID).Delete(ctx, grant.Key(shareLinkID)); err != nil {
		s.metrics.GrantStoreError("delete")
		return fmt.Errorf("clear grant: %w", err)
	}
	return nil
}

// QRImage renders the hand-off barcode for an unlocked share.
func (s *Service) QRImage(ctx context.Context, req PreviewRequest) ([]byte, error) {
	v, err := s.runSession(ctx, req)
	if err != nil {
		return nil, err
	}
	defer v.Close()
	if v.gate.State() != gate.StateUnlocked {
		return nil, errAccessRequired
	}
	_, data, err := s.qr.PNG(ctx, v.req.ShareLinkID, v.gate.StoredGrant())
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return data, nil
}

type FeedbackInput struct {
	FeedbackType string `json:"feedbackType"`
	Comment      string `json:"comment"`
	ClientName   string `json:"clientName"`
	ClientEmail  string `json:"clientEmail"`
}

// SubmitFeedback records a client verdict. It works whether or not the model
// could be displayed, but only for an unlocked share.
func (s *Service) SubmitFeedback(ctx context.Context, req PreviewRequest, input FeedbackInput) (store.Feedback, error) {
	feedbackType := store.FeedbackType(strings.TrimSpace(input.FeedbackType))
	if !feedbackType.Valid() {
		return store.Feedback{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "feedbackType must be Approved or Needs Revision", nil)
	}
	clientEmail := strings.TrimSpace(input.ClientEmail)
	if clientEmail != "" {
		if _, err := mail.ParseAddress(clientEmail); err != nil {
			return store.Feedback{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "clientEmail is not a valid address", nil)
		}
	}
	v, err := s.runSession(ctx, req)
	if err != nil {
		return store.Feedback{}, err
	}
	defer v.Close()
	if v.gate.State() != gate.StateUnlocked {
		return store.Feedback{}, errAccessRequired
	}
	feedback, err := s.store.InsertFeedback(ctx, store.Feedback{
		ShareLinkID:  v.record.ShareLinkID,
		FeedbackType: feedbackType,
		Comment:      strings.TrimSpace(input.Comment),
		ClientName:   strings.TrimSpace(input.ClientName),
		ClientEmail:  clientEmail,
	})
	if err != nil {
		return store.Feedback{}, err
	}
	s.notifyFeedback(v.record, feedback)
	return feedback, nil
}

// notifyFeedback sends the producer email in the background. Failures are
// logged and never reach the client.
func (s *Service) notifyFeedback(project store.ProjectShare, feedback store.Feedback) {
	if s.notifier == nil {
		return
	}
	data := email.FeedbackData{
		ProductName:  project.ProductName,
		ShareLinkID:  project.ShareLinkID,
		FeedbackType: string(feedback.FeedbackType),
		Comment:      feedback.Comment,
		ClientName:   feedback.ClientName,
		ClientEmail:  feedback.ClientEmail,
		PreviewURL:   s.qr.TargetURL(project.ShareLinkID, ""),
		SubmittedAt:  feedback.SubmittedAt,
	}
	go func() {
		if err := s.notifier.SendFeedbackNotification(data); err != nil {
			s.logger.Warn().Err(err).Str("share_link_id", data.ShareLinkID).Msg("feedback: notification failed")
		}
	}()
}

func (s *Service) buildPreview(v *viewSession) Preview {
	preview := s.previewFor(v)
	s.metrics.PreviewServed(preview.State, preview.UnlockedVia)
	if preview.Launch != nil {
		s.metrics.LaunchBuilt(preview.Launch.Kind)
	}
	return preview
}

func (s *Service) previewFor(v *viewSession) Preview {
	preview := Preview{
		State:       v.gate.State().String(),
		ShareLinkID: v.req.ShareLinkID,
		Platform:    v.platform,
	}
	if v.gate.State() != gate.StateUnlocked {
		prompt := v.gate.Prompt()
		preview.Prompt = &prompt
		return preview
	}

	record := v.record
	preview.UnlockedVia = string(v.gate.Via())
	preview.ModelAvailable = strings.TrimSpace(record.AssetRefGLB) != ""
	preview.Project = &ProjectView{
		ShareLinkID:  record.ShareLinkID,
		ProductName:  record.ProductName,
		GLBURL:       record.AssetRefGLB,
		USDZURL:      record.AssetRefUSDZ,
		ThumbnailURL: record.ThumbnailURL,
		Notes:        record.Notes,
		Status:       string(record.Status),
		Protected:    record.HasAccessCode(),
	}

	descriptor, err := launch.Build(record, v.platform)
	if err != nil {
		preview.Launch = &LaunchView{Kind: "unavailable", Reason: launchReason(descriptor.Kind)}
		return preview
	}
	preview.Launch = &LaunchView{
		Kind:       string(descriptor.Kind),
		URI:        descriptor.URI,
		QRRequired: descriptor.QRRequired(),
	}
	if descriptor.QRRequired() {
		preview.QR = &QRView{
			TargetURL: s.qr.TargetURL(record.ShareLinkID, v.gate.StoredGrant()),
			ImageURL:  qrImagePath(record.ShareLinkID, v.req.AccessToken),
		}
	}
	return preview
}

func launchReason(kind launch.Kind) string {
	switch kind {
	case launch.KindQuickLook:
		return "No USDZ model is available for iOS AR"
	case launch.KindSceneViewer:
		return "No GLB model is available for Android AR"
	default:
		return "AR model unavailable"
	}
}

func qrImagePath(shareLinkID, accessToken string) string {
	path := "/api/preview/qr?id=" + url.QueryEscape(shareLinkID)
	if accessToken != "" {
		path += "&access=" + url.QueryEscape(accessToken)
	}
	return path
}

// DeviceFromToken returns the device id carried by a device cookie.
func (s *Service) DeviceFromToken(token string) (string, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.DeviceSecret), token)
	if err != nil {
		return "", err
	}
	return claims.Sub, nil
}

// NewDevice mints a device id and its signed cookie value.
func (s *Service) NewDevice() (deviceID, token string, err error) {
	deviceID, err = idgen.DeviceID()
	if err != nil {
		return "", "", err
	}
	token, err = auth.IssueDeviceToken([]byte(s.cfg.DeviceSecret), deviceID, deviceTokenTTL)
	if err != nil {
		return "", "", fmt.Errorf("issue device token: %w", err)
	}
	return deviceID, token, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingGrants(ctx context.Context) error {
	return s.grants.Ping(ctx)
}
