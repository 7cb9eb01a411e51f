// Package launch builds the platform specific descriptor that opens a share
// in a native AR viewer.
package launch

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"arshare/api/internal/platform"
	"arshare/api/internal/store"
)

type Kind string

const (
	KindQuickLook   Kind = "ios-quicklook"
	KindSceneViewer Kind = "android-sceneviewer"
	KindDesktop     Kind = "desktop-fallback"
)

var ErrMissingAsset = errors.New("missing AR asset")

const (
	sceneViewerBase = "intent://arvr.google.com/scene-viewer/1.0"
	sceneViewerTail = "#Intent;scheme=https;package=com.google.android.googlequicksearchbox;action=android.intent.action.VIEW;S.browser_fallback_url=https://developers.google.com/ar;end;"
)

// Descriptor is a tagged launch instruction. URI is empty for KindDesktop,
// which tells the caller to show an in-page preview and a QR code instead.
type Descriptor struct {
	Kind Kind
	URI  string
}

// QRRequired reports whether the caller should hand the visitor off to a
// phone with a QR code.
func (d Descriptor) QRRequired() bool {
	return d.Kind == KindDesktop
}

// Build selects the launch path for c. A mobile iOS visitor needs a USDZ asset
// and a mobile Android visitor needs a GLB asset; a missing one yields an
// error wrapping ErrMissingAsset rather than a broken link.
func Build(record store.ProjectShare, c platform.Classification) (Descriptor, error) {
	if !c.IsMobile() {
		return Descriptor{Kind: KindDesktop}, nil
	}
	switch c.Platform {
	case platform.PlatformIOS:
		if strings.TrimSpace(record.AssetRefUSDZ) == "" {
			return Descriptor{Kind: KindQuickLook}, fmt.Errorf("%w: no usdz asset for %s", ErrMissingAsset, record.ShareLinkID)
		}
		return Descriptor{Kind: KindQuickLook, URI: record.AssetRefUSDZ}, nil
	case platform.PlatformAndroid:
		if strings.TrimSpace(record.AssetRefGLB) == "" {
			return Descriptor{Kind: KindSceneViewer}, fmt.Errorf("%w: no glb asset for %s", ErrMissingAsset, record.ShareLinkID)
		}
		return Descriptor{Kind: KindSceneViewer, URI: SceneViewerIntent(record.AssetRefGLB, record.ProductName)}, nil
	default:
		return Descriptor{Kind: KindDesktop}, nil
	}
}

// SceneViewerIntent returns the Android intent URI for an AR-only Scene
// Viewer session.
func SceneViewerIntent(glbURL, title string) string {
	var b strings.Builder
	b.WriteString(sceneViewerBase)
	b.WriteString("?file=")
	b.WriteString(EncodeComponent(glbURL))
	b.WriteString("&mode=ar_only&title=")
	b.WriteString(EncodeComponent(title))
	b.WriteString(sceneViewerTail)
	return b.String()
}

var componentFixer = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeComponent percent-encodes value the way browsers encode a URI
// component: spaces become %20 and the marks !'()* are left alone.
func EncodeComponent(value string) string {
	return componentFixer.Replace(url.QueryEscape(value))
}
