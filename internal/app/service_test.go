package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"arshare/api/internal/bypass"
	"arshare/api/internal/config"
	"arshare/api/internal/email"
	"arshare/api/internal/gate"
	"arshare/api/internal/grant"
	"arshare/api/internal/resolver"
	"arshare/api/internal/search"
	"arshare/api/internal/store"
)

const (
	uaIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148"
	uaAndroid = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36"
	uaDesktop = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Safari/605.1.15"
)

type fakeStore struct {
	getProjectFn     func(context.Context, string) (store.ProjectShare, error)
	insertProjectFn  func(context.Context, store.ProjectShare) (store.ProjectShare, error)
	listProjectsFn   func(context.Context, string, int, int) ([]store.ProjectShare, int, error)
	insertFeedbackFn func(context.Context, store.Feedback) (store.Feedback, error)
	listFeedbackFn   func(context.Context, string, int, int) ([]store.FeedbackEntry, int, error)
	deleteProjectFn  func(context.Context, string) error
	pingFn           func(context.Context) error
}

func (f *fakeStore) GetProjectByShareLinkID(ctx context.Context, id string) (store.ProjectShare, error) {
	if f.getProjectFn != nil {
		return f.getProjectFn(ctx, id)
	}
	return store.ProjectShare{}, store.ErrNotFound
}

func (f *fakeStore) InsertProject(ctx context.Context, project store.ProjectShare) (store.ProjectShare, error) {
	if f.insertProjectFn != nil {
		return f.insertProjectFn(ctx, project)
	}
	project.ID = "p-1"
	return project, nil
}

func (f *fakeStore) ListProjects(ctx context.Context, query string, limit, offset int) ([]store.ProjectShare, int, error) {
	if f.listProjectsFn != nil {
		return f.listProjectsFn(ctx, query, limit, offset)
	}
	return nil, 0, nil
}

func (f *fakeStore) InsertFeedback(ctx context.Context, feedback store.Feedback) (store.Feedback, error) {
	if f.insertFeedbackFn != nil {
		return f.insertFeedbackFn(ctx, feedback)
	}
	feedback.ID = "f-1"
	return feedback, nil
}

func (f *fakeStore) ListFeedback(ctx context.Context, shareLinkID string, limit, offset int) ([]store.FeedbackEntry, int, error) {
	if f.listFeedbackFn != nil {
		return f.listFeedbackFn(ctx, shareLinkID, limit, offset)
	}
	return nil, 0, nil
}

func (f *fakeStore) DeleteProject(ctx context.Context, shareLinkID string) error {
	if f.deleteProjectFn != nil {
		return f.deleteProjectFn(ctx, shareLinkID)
	}
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeSearch struct {
	searchFn func(context.Context, search.Query) search.Response
	indexed  []search.ProjectRecord
	deleted  []string
}

func (f *fakeSearch) Search(ctx context.Context, q search.Query) search.Response {
	if f.searchFn != nil {
		return f.searchFn(ctx, q)
	}
	return search.Response{Results: []search.Result{}}
}

func (f *fakeSearch) IndexProject(record search.ProjectRecord) {
	f.indexed = append(f.indexed, record)
}

func (f *fakeSearch) DeleteProject(id string) {
	f.deleted = append(f.deleted, id)
}

// failingDevices hands out a KV whose reads or writes fail.
type failingDevices struct {
	getErr error
	setErr error
}

func (d failingDevices) ForDevice(string) grant.KV  { return failingKV(d) }
func (d failingDevices) Ping(context.Context) error { return d.getErr }

type failingKV struct {
	getErr error
	setErr error
}

func (k failingKV) Get(context.Context, string) (string, bool, error) { return "", false, k.getErr }
func (k failingKV) Set(context.Context, string, string) error         { return k.setErr }
func (k failingKV) Delete(context.Context, string) error              { return k.setErr }

// countingDevices counts grant reads across every device.
type countingDevices struct {
	*grant.MemoryDevices
	gets int
}

func (d *countingDevices) ForDevice(deviceID string) grant.KV {
	return &countingKV{KV: d.MemoryDevices.ForDevice(deviceID), gets: &d.gets}
}

type countingKV struct {
	grant.KV
	gets *int
}

func (k *countingKV) Get(ctx context.Context, key string) (string, bool, error) {
	*k.gets++
	return k.KV.Get(ctx, key)
}

func testConfig() config.Config {
	return config.Config{
		PublicBaseURL: "https://share.example.com",
		PreviewPath:   "/ar-client-preview",
		DeviceSecret:  "test-secret",
		FetchTimeout:  time.Second,
		CORSOrigin:    "*",
	}
}

func newTestService(fs *fakeStore) (*Service, *grant.MemoryDevices, *fakeSearch) {
	devices := grant.NewMemoryDevices()
	fsearch := &fakeSearch{}
	return New(testConfig(), fs, devices, fsearch, zerolog.Nop()), devices, fsearch
}

func chairProject(code string) store.ProjectShare {
	return store.ProjectShare{
		ID:           "p-1",
		ShareLinkID:  "ar-ab12cd",
		ProductName:  "Chair",
		AssetRefGLB:  "https://x/y.glb",
		AssetRefUSDZ: "https://x/y.usdz",
		ThumbnailURL: "https://x/t.png",
		AccessCode:   code,
		Status:       store.StatusPending,
	}
}

func storeWith(project store.ProjectShare) *fakeStore {
	return &fakeStore{
		getProjectFn: func(_ context.Context, id string) (store.ProjectShare, error) {
			if id != project.ShareLinkID {
				return store.ProjectShare{}, store.ErrNotFound
			}
			return project, nil
		},
	}
}

func previewReq(device, ua, token string) PreviewRequest {
	return PreviewRequest{DeviceID: device, ShareLinkID: "ar-ab12cd", AccessToken: token, UserAgent: ua}
}

func TestOpenPreviewPublicDesktop(t *testing.T) {
	svc, _, _ := newTestService(storeWith(chairProject("")))

	preview, err := svc.OpenPreview(context.Background(), previewReq("dev_1", uaDesktop, ""))
	if err != nil {
		t.Fatalf("OpenPreview() error = %v", err)
	}
	if preview.State != "unlocked" || preview.UnlockedVia != string(gate.UnlockPublic) {
		t.Fatalf("expected public unlock, got %+v", preview)
	}
	if preview.Prompt != nil {
		t.Fatal("public share must not carry a prompt")
	}
	if preview.Launch == nil || preview.Launch.Kind != "desktop-fallback" || !preview.Launch.QRRequired {
		t.Fatalf("expected desktop fallback, got %+v", preview.Launch)
	}
	if preview.QR == nil || preview.QR.TargetURL != "https://share.example.com/ar-client-preview?id=ar-ab12cd" {
		t.Fatalf("unexpected qr block %+v", preview.QR)
	}
	if preview.QR.ImageURL != "/api/preview/qr?id=ar-ab12cd" {
		t.Fatalf("unexpected qr image url %q", preview.QR.ImageURL)
	}
	if !preview.ModelAvailable {
		t.Fatal("expected model to be available")
	}
}

func TestOpenPreviewLockedRevealsOnlyPrompt(t *testing.T) {
	svc, _, _ := newTestService(storeWith(chairProject("XYZ123")))

	preview, err := svc.OpenPreview(context.Background(), previewReq("dev_1", uaIPhone, ""))
	if err != nil {
		t.Fatalf("OpenPreview() error = %v", err)
	}
	if preview.State != "locked" || preview.Prompt == nil {
		t.Fatalf("expected locked preview with prompt, got %+v", preview)
	}
	if preview.Project != nil || preview.Launch != nil || preview.QR != nil {
		t.Fatalf("locked preview leaked project data: %+v", preview)
	}
	if preview.Platform.Platform != "ios" || preview.Platform.DeviceClass != "mobile" {
		t.Fatalf("unexpected platform %+v", preview.Platform)
	}
}

func TestOpenPreviewBypassTokenOnIOS(t *testing.T) {
	svc, devices, _ := newTestService(storeWith(chairProject("XYZ123")))

	preview, err := svc.OpenPreview(context.Background(), previewReq("dev_1", uaIPhone, bypass.Default.Encode("XYZ123")))
	if err != nil {
		t.Fatalf("OpenPreview() error = %v", err)
	}
	if preview.State != "unlocked" || preview.UnlockedVia != string(gate.UnlockToken) {
		t.Fatalf("expected token unlock, got %+v", preview)
	}
	if preview.Launch.Kind != "ios-quicklook" || preview.Launch.URI != "https://x/y.usdz" {
		t.Fatalf("unexpected launch %+v", preview.Launch)
	}
	if preview.QR != nil {
		t.Fatal("mobile preview must not carry a qr block")
	}
	kv := devices.ForDevice("dev_1").(*grant.MemoryKV)
	if kv.Len() != 0 {
		t.Fatal("token unlock must not persist a grant")
	}
}

func TestOpenPreviewAndroidIntent(t *testing.T) {
	svc, _, _ := newTestService(storeWith(chairProject("")))

	preview, err := svc.OpenPreview(context.Background(), previewReq("dev_1", uaAndroid, ""))
	if err != nil {
		t.Fatalf("OpenPreview() error = %v", err)
	}
	if preview.Launch.Kind != "android-sceneviewer" {
		t.Fatalf("expected scene viewer, got %+v", preview.Launch)
	}
	if !strings.Contains(preview.Launch.URI, "file=https%3A%2F%2Fx%2Fy.glb") || !strings.Contains(preview.Launch.URI, "title=Chair") {
		t.Fatalf("unexpected intent %q", preview.Launch.URI)
	}
}

func TestOpenPreviewMissingUSDZOnIOS(t *testing.T) {
	project := chairProject("")
	project.AssetRefUSDZ = ""
	svc, _, _ := newTestService(storeWith(project))

	preview, err := svc.OpenPreview(context.Background(), previewReq("dev_1", uaIPhone, ""))
	if err != nil {
		t.Fatalf("OpenPreview() error = %v", err)
	}
	if preview.Launch.Kind != "unavailable" || preview.Launch.Reason == "" || preview.Launch.URI != "" {
		t.Fatalf("expected unavailable launch, got %+v", preview.Launch)
	}
	if preview.State != "unlocked" || preview.Project == nil {
		t.Fatal("missing asset must not hide the project")
	}
}

func TestOpenPreviewNoModel(t *testing.T) {
	project := chairProject("")
	project.AssetRefGLB = ""
	svc, _, _ := newTestService(storeWith(project))

	preview, err := svc.OpenPreview(context.Background(), previewReq("dev_1", uaDesktop, ""))
	if err != nil {
		t.Fatalf("OpenPreview() error = %v", err)
	}
	if preview.ModelAvailable {
		t.Fatal("expected modelAvailable=false without glb")
	}
}

func TestOpenPreviewErrors(t *testing.T) {
	svc, _, _ := newTestService(&fakeStore{
		getProjectFn: func(_ context.Context, id string) (store.ProjectShare, error) {
			if id == "ar-broken" {
				return store.ProjectShare{}, errors.New("connection reset")
			}
			return store.ProjectShare{}, store.ErrNotFound
		},
	})

	_, err := svc.OpenPreview(context.Background(), PreviewRequest{DeviceID: "dev_1", ShareLinkID: "ar-zzzzzz"})
	if !errors.Is(err, resolver.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, err = svc.OpenPreview(context.Background(), PreviewRequest{DeviceID: "dev_1", ShareLinkID: "ar-broken"})
	if !errors.Is(err, resolver.ErrLoadFailure) {
		t.Fatalf("expected ErrLoadFailure, got %v", err)
	}
	_, err = svc.OpenPreview(context.Background(), PreviewRequest{DeviceID: "dev_1", ShareLinkID: "  "})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "MISSING_ID" {
		t.Fatalf("expected MISSING_ID, got %v", err)
	}
}

func TestOpenPreviewDropsLateResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, devices, _ := newTestService(&fakeStore{
		getProjectFn: func(context.Context, string) (store.ProjectShare, error) {
			// The visitor leaves while the fetch is in flight.
			cancel()
			return chairProject("XYZ123"), nil
		},
	})
	devices.ForDevice("dev_1").Set(context.Background(), grant.Key("ar-ab12cd"), "XYZ123")

	v, err := svc.openSession(ctx, previewReq("dev_1", uaDesktop, ""))
	if err != nil {
		t.Fatalf("openSession() error = %v", err)
	}
	if err := svc.load(v); !errors.Is(err, ErrStaleSession) {
		t.Fatalf("expected ErrStaleSession, got %v", err)
	}
	if v.gate.State() != gate.StateChecking {
		t.Fatalf("stale result must not move the gate, got %s", v.gate.State())
	}
}

func TestSubmitAccessCodeFlow(t *testing.T) {
	svc, devices, _ := newTestService(storeWith(chairProject("XYZ123")))
	ctx := context.Background()

	_, err := svc.SubmitAccessCode(ctx, previewReq("dev_1", uaDesktop, ""), "WRONG1")
	if !errors.Is(err, gate.ErrInvalidAccessCode) {
		t.Fatalf("expected ErrInvalidAccessCode, got %v", err)
	}

	preview, err := svc.SubmitAccessCode(ctx, previewReq("dev_1", uaDesktop, ""), "xyz123")
	if err != nil {
		t.Fatalf("SubmitAccessCode() error = %v", err)
	}
	if preview.State != "unlocked" || preview.UnlockedVia != string(gate.UnlockManual) {
		t.Fatalf("expected manual unlock, got %+v", preview)
	}
	stored, ok, _ := devices.ForDevice("dev_1").Get(ctx, grant.Key("ar-ab12cd"))
	if !ok || stored != "XYZ123" {
		t.Fatalf("expected canonical grant, got %q (ok=%v)", stored, ok)
	}
	wantTarget := "https://share.example.com/ar-client-preview?id=ar-ab12cd&access=" + bypass.Default.Encode("XYZ123")
	if preview.QR == nil || preview.QR.TargetURL != wantTarget {
		t.Fatalf("expected qr target with grant, got %+v", preview.QR)
	}

	// The same device now gets in without a prompt.
	again, err := svc.OpenPreview(ctx, previewReq("dev_1", uaDesktop, ""))
	if err != nil || again.UnlockedVia != string(gate.UnlockGrant) {
		t.Fatalf("expected grant unlock, got %+v err=%v", again, err)
	}

	// Another device still sees the prompt.
	other, err := svc.OpenPreview(ctx, previewReq("dev_2", uaDesktop, ""))
	if err != nil || other.State != "locked" {
		t.Fatalf("expected other device locked, got %+v err=%v", other, err)
	}
}

func TestDesktopQRTargetReadsGrantOnce(t *testing.T) {
	devices := &countingDevices{MemoryDevices: grant.NewMemoryDevices()}
	ctx := context.Background()
	if err := devices.MemoryDevices.ForDevice("dev_1").Set(ctx, grant.Key("ar-ab12cd"), "XYZ123"); err != nil {
		t.Fatalf("seed grant: %v", err)
	}
	svc := New(testConfig(), storeWith(chairProject("XYZ123")), devices, &fakeSearch{}, zerolog.Nop())

	preview, err := svc.OpenPreview(ctx, previewReq("dev_1", uaDesktop, ""))
	if err != nil {
		t.Fatalf("OpenPreview() error = %v", err)
	}
	wantTarget := "https://share.example.com/ar-client-preview?id=ar-ab12cd&access=" + bypass.Default.Encode("XYZ123")
	if preview.QR == nil || preview.QR.TargetURL != wantTarget {
		t.Fatalf("expected qr target with grant, got %+v", preview.QR)
	}
	if devices.gets != 1 {
		t.Fatalf("expected one grant read, got %d", devices.gets)
	}
}

func TestSubmitAccessCodeOnPublicShareIsNoop(t *testing.T) {
	svc, devices, _ := newTestService(storeWith(chairProject("")))

	preview, err := svc.SubmitAccessCode(context.Background(), previewReq("dev_1", uaDesktop, ""), "anything")
	if err != nil {
		t.Fatalf("SubmitAccessCode() error = %v", err)
	}
	if preview.State != "unlocked" {
		t.Fatalf("expected unlocked, got %s", preview.State)
	}
	if devices.ForDevice("dev_1").(*grant.MemoryKV).Len() != 0 {
		t.Fatal("public share must not store a grant")
	}
}

func TestSubmitAccessCodeGrantWriteFailure(t *testing.T) {
	svc := New(testConfig(), storeWith(chairProject("XYZ123")), failingDevices{setErr: errors.New("redis down")}, &fakeSearch{}, zerolog.Nop())

	preview, err := svc.SubmitAccessCode(context.Background(), previewReq("dev_1", uaDesktop, ""), "XYZ123")
	if err != nil {
		t.Fatalf("expected unlock despite grant failure, got %v", err)
	}
	if preview.State != "unlocked" {
		t.Fatalf("expected unlocked, got %s", preview.State)
	}
}

func TestGrantReadFailureShowsPrompt(t *testing.T) {
	svc := New(testConfig(), storeWith(chairProject("XYZ123")), failingDevices{getErr: errors.New("redis down")}, &fakeSearch{}, zerolog.Nop())

	preview, err := svc.OpenPreview(context.Background(), previewReq("dev_1", uaDesktop, ""))
	if err != nil {
		t.Fatalf("OpenPreview() error = %v", err)
	}
	if preview.State != "locked" {
		t.Fatalf("expected locked, got %s", preview.State)
	}
}

func TestClearGrant(t *testing.T) {
	svc, devices, _ := newTestService(storeWith(chairProject("XYZ123")))
	ctx := context.Background()
	_ = devices.ForDevice("dev_1").Set(ctx, grant.Key("ar-ab12cd"), "XYZ123")

	if err := svc.ClearGrant(ctx, "dev_1", "ar-ab12cd"); err != nil {
		t.Fatalf("ClearGrant() error = %v", err)
	}
	preview, err := svc.OpenPreview(ctx, previewReq("dev_1", uaDesktop, ""))
	if err != nil || preview.State != "locked" {
		t.Fatalf("expected locked after clearing, got %+v err=%v", preview, err)
	}
}

func TestQRImageRequiresUnlock(t *testing.T) {
	svc, _, _ := newTestService(storeWith(chairProject("XYZ123")))

	if _, err := svc.QRImage(context.Background(), previewReq("dev_1", uaDesktop, "")); !errors.Is(err, errAccessRequired) {
		t.Fatalf("expected errAccessRequired, got %v", err)
	}
	image, err := svc.QRImage(context.Background(), previewReq("dev_1", uaDesktop, bypass.Default.Encode("XYZ123")))
	if err != nil {
		t.Fatalf("QRImage() error = %v", err)
	}
	if !strings.HasPrefix(string(image), "\x89PNG") {
		t.Fatal("expected PNG bytes")
	}
}

func TestSubmitFeedback(t *testing.T) {
	project := chairProject("XYZ123")
	project.AssetRefGLB = ""
	var saved store.Feedback
	fs := storeWith(project)
	fs.insertFeedbackFn = func(_ context.Context, feedback store.Feedback) (store.Feedback, error) {
		saved = feedback
		feedback.ID = "f-1"
		return feedback, nil
	}
	svc, _, _ := newTestService(fs)
	ctx := context.Background()
	token := bypass.Default.Encode("XYZ123")

	_, err := svc.SubmitFeedback(ctx, previewReq("dev_1", uaDesktop, ""), FeedbackInput{FeedbackType: "Approved"})
	if !errors.Is(err, errAccessRequired) {
		t.Fatalf("expected errAccessRequired while locked, got %v", err)
	}

	_, err = svc.SubmitFeedback(ctx, previewReq("dev_1", uaDesktop, token), FeedbackInput{FeedbackType: "approved"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}

	feedback, err := svc.SubmitFeedback(ctx, previewReq("dev_1", uaDesktop, token), FeedbackInput{FeedbackType: "Needs Revision", Comment: "  Darker legs  "})
	if err != nil {
		t.Fatalf("SubmitFeedback() error = %v", err)
	}
	if feedback.ID != "f-1" || saved.ShareLinkID != "ar-ab12cd" || saved.Comment != "Darker legs" {
		t.Fatalf("unexpected feedback saved=%+v returned=%+v", saved, feedback)
	}
}

type fakeNotifier struct {
	sent chan email.FeedbackData
	err  error
}

func (f *fakeNotifier) SendFeedbackNotification(data email.FeedbackData) error {
	f.sent <- data
	return f.err
}

func TestSubmitFeedbackNotifiesProducer(t *testing.T) {
	fs := storeWith(chairProject(""))
	svc, _, _ := newTestService(fs)
	notifier := &fakeNotifier{sent: make(chan email.FeedbackData, 1)}
	svc.WithNotifier(notifier)

	_, err := svc.SubmitFeedback(context.Background(), previewReq("dev_1", uaDesktop, ""), FeedbackInput{
		FeedbackType: "Approved",
		Comment:      "Ship it",
		ClientName:   " Dana ",
		ClientEmail:  "dana@example.com",
	})
	if err != nil {
		t.Fatalf("SubmitFeedback() error = %v", err)
	}

	select {
	case data := <-notifier.sent:
		if data.ProductName != "Chair" || data.FeedbackType != "Approved" || data.ClientName != "Dana" {
			t.Fatalf("unexpected notification %+v", data)
		}
		if data.PreviewURL != "https://share.example.com/ar-client-preview?id=ar-ab12cd" {
			t.Fatalf("unexpected preview url %q", data.PreviewURL)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a feedback notification")
	}
}

func TestSubmitFeedbackNotificationFailureIsNotReturned(t *testing.T) {
	svc, _, _ := newTestService(storeWith(chairProject("")))
	notifier := &fakeNotifier{sent: make(chan email.FeedbackData, 1), err: errors.New("smtp down")}
	svc.WithNotifier(notifier)

	if _, err := svc.SubmitFeedback(context.Background(), previewReq("dev_1", uaDesktop, ""), FeedbackInput{FeedbackType: "Approved"}); err != nil {
		t.Fatalf("SubmitFeedback() error = %v", err)
	}
	select {
	case <-notifier.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notification attempt")
	}
}

func TestSubmitFeedbackRejectsBadClientEmail(t *testing.T) {
	svc, _, _ := newTestService(storeWith(chairProject("")))

	_, err := svc.SubmitFeedback(context.Background(), previewReq("dev_1", uaDesktop, ""), FeedbackInput{FeedbackType: "Approved", ClientEmail: "not an email"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestCreateProjectGeneratesCode(t *testing.T) {
	var inserted store.ProjectShare
	fs := &fakeStore{insertProjectFn: func(_ context.Context, project store.ProjectShare) (store.ProjectShare, error) {
		inserted = project
		project.ID = "p-1"
		return project, nil
	}}
	svc, _, fsearch := newTestService(fs)

	created, err := svc.CreateProject(context.Background(), CreateProjectInput{
		ProductName:  " Chair ",
		GLBURL:       "https://x/y.glb",
		ThumbnailURL: "https://x/t.png",
	})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if len(created.AccessCode) != 6 || strings.ToUpper(created.AccessCode) != created.AccessCode {
		t.Fatalf("expected generated uppercase code, got %q", created.AccessCode)
	}
	if !strings.HasPrefix(inserted.ShareLinkID, "ar-") || inserted.Status != store.StatusPending || inserted.ProductName != "Chair" {
		t.Fatalf("unexpected inserted project %+v", inserted)
	}
	if created.PreviewURL != "https://share.example.com/ar-client-preview?id="+inserted.ShareLinkID {
		t.Fatalf("unexpected preview url %q", created.PreviewURL)
	}
	if len(fsearch.indexed) != 1 || fsearch.indexed[0].ID != inserted.ShareLinkID {
		t.Fatalf("expected project to be indexed, got %+v", fsearch.indexed)
	}
}

func TestCreateProjectUppercasesGivenCodeAndSupportsPublic(t *testing.T) {
	svc, _, _ := newTestService(&fakeStore{})
	base := CreateProjectInput{ProductName: "Chair", GLBURL: "https://x/y.glb", ThumbnailURL: "https://x/t.png"}

	withCode := base
	withCode.AccessCode = "ab12"
	created, err := svc.CreateProject(context.Background(), withCode)
	if err != nil || created.AccessCode != "AB12" {
		t.Fatalf("expected AB12, got %q err=%v", created.AccessCode, err)
	}

	public := base
	public.Public = true
	public.AccessCode = "IGNORED"
	created, err = svc.CreateProject(context.Background(), public)
	if err != nil || created.AccessCode != "" || created.Project.Protected {
		t.Fatalf("expected public project, got %+v err=%v", created, err)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	svc, _, _ := newTestService(&fakeStore{})
	tests := []CreateProjectInput{
		{GLBURL: "https://x/y.glb", ThumbnailURL: "https://x/t.png"},
		{ProductName: "Chair", ThumbnailURL: "https://x/t.png"},
		{ProductName: "Chair", GLBURL: "https://x/y.glb"},
		{ProductName: "Chair", GLBURL: "https://x/y.glb", ThumbnailURL: "https://x/t.png", Status: "Done"},
		{ProductName: "Chair", GLBURL: "https://x/y.glb", ThumbnailURL: "https://x/t.png", AccessCode: "TOOLONG99"},
		{ProductName: "Chair", GLBURL: "https://x/y.glb", ThumbnailURL: "https://x/t.png", AccessCode: "AB-12"},
	}
	for _, input := range tests {
		_, err := svc.CreateProject(context.Background(), input)
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
			t.Errorf("CreateProject(%+v) error = %v, want VALIDATION_ERROR", input, err)
		}
	}
}

func TestCreateProjectRetriesOnShareLinkConflict(t *testing.T) {
	attempts := 0
	fs := &fakeStore{insertProjectFn: func(_ context.Context, project store.ProjectShare) (store.ProjectShare, error) {
		attempts++
		if attempts < 3 {
			return store.ProjectShare{}, store.ErrConflict
		}
		return project, nil
	}}
	svc, _, _ := newTestService(fs)

	if _, err := svc.CreateProject(context.Background(), CreateProjectInput{ProductName: "Chair", GLBURL: "https://x/y.glb", ThumbnailURL: "https://x/t.png"}); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}

	attempts = -10
	if _, err := svc.CreateProject(context.Background(), CreateProjectInput{ProductName: "Chair", GLBURL: "https://x/y.glb", ThumbnailURL: "https://x/t.png"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict after exhausting retries, got %v", err)
	}
}

func TestDeleteProject(t *testing.T) {
	var deleted string
	fs := &fakeStore{deleteProjectFn: func(_ context.Context, id string) error {
		if id != "ar-ab12cd" {
			return store.ErrNotFound
		}
		deleted = id
		return nil
	}}
	svc, _, fsearch := newTestService(fs)

	if err := svc.DeleteProject(context.Background(), " ar-ab12cd "); err != nil {
		t.Fatalf("DeleteProject() error = %v", err)
	}
	if deleted != "ar-ab12cd" {
		t.Fatalf("expected trimmed id to reach the store, got %q", deleted)
	}
	if len(fsearch.deleted) != 1 || fsearch.deleted[0] != "ar-ab12cd" {
		t.Fatalf("expected project removed from search, got %v", fsearch.deleted)
	}

	if err := svc.DeleteProject(context.Background(), "ar-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(fsearch.deleted) != 1 {
		t.Fatalf("failed delete must not touch the index, got %v", fsearch.deleted)
	}
	if err := svc.DeleteProject(context.Background(), "  "); err != errMissingID {
		t.Fatalf("expected errMissingID, got %v", err)
	}
}

func TestListFeedback(t *testing.T) {
	submitted := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var gotLimit, gotOffset int
	fs := &fakeStore{listFeedbackFn: func(_ context.Context, id string, limit, offset int) ([]store.FeedbackEntry, int, error) {
		gotLimit, gotOffset = limit, offset
		return []store.FeedbackEntry{{
			Feedback: store.Feedback{
				ID:           "f-1",
				ShareLinkID:  id,
				FeedbackType: store.FeedbackApproved,
				ClientName:   "Dana",
				SubmittedAt:  submitted,
			},
			ProductName:  "Chair",
			ThumbnailURL: "https://x/t.png",
		}}, 1, nil
	}}
	svc, _, _ := newTestService(fs)

	list, err := svc.ListFeedback(context.Background(), "ar-ab12cd", 1000, -4)
	if err != nil {
		t.Fatalf("ListFeedback() error = %v", err)
	}
	if gotLimit != search.MaxLimit || gotOffset != 0 {
		t.Fatalf("expected clamped paging, got limit=%d offset=%d", gotLimit, gotOffset)
	}
	if list.Total != 1 || len(list.Results) != 1 {
		t.Fatalf("unexpected list %+v", list)
	}
	got := list.Results[0]
	if got.ProductName != "Chair" || got.FeedbackType != "Approved" || got.ShareLinkID != "ar-ab12cd" || !got.SubmittedAt.Equal(submitted) {
		t.Fatalf("unexpected feedback view %+v", got)
	}

	fs.listFeedbackFn = func(context.Context, string, int, int) ([]store.FeedbackEntry, int, error) {
		return nil, 0, nil
	}
	if list, err = svc.ListFeedback(context.Background(), "", 0, 0); err != nil || list.Results == nil {
		t.Fatalf("expected empty non-nil results, got %+v err=%v", list, err)
	}
}

func TestDeviceTokenRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(&fakeStore{})

	deviceID, token, err := svc.NewDevice()
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	if !strings.HasPrefix(deviceID, "dev_") {
		t.Fatalf("unexpected device id %q", deviceID)
	}
	got, err := svc.DeviceFromToken(token)
	if err != nil || got != deviceID {
		t.Fatalf("DeviceFromToken() = %q, %v", got, err)
	}
}
