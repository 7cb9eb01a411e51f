// Package platform classifies a visiting client from its self-reported
// identifier (the User-Agent header on the web).
package platform

import (
	"regexp"
	"strings"
)

type Platform string
type DeviceClass string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformOther   Platform = "other"
)

const (
	DeviceMobile  DeviceClass = "mobile"
	DeviceDesktop DeviceClass = "desktop"
)

// Classification is the result of Detect.
type Classification struct {
	Platform    Platform    `json:"platform"`
	DeviceClass DeviceClass `json:"deviceClass"`
}

var (
	mobilePattern  = regexp.MustCompile(`android|webos|iphone|ipad|ipod|blackberry|iemobile|opera mini`)
	iosPattern     = regexp.MustCompile(`iphone|ipad`)
	androidPattern = regexp.MustCompile(`android`)
)

// Detect classifies a client signal. Device class and platform are decided
// independently, so a webOS phone is (other, mobile).
func Detect(signal string) Classification {
	lower := strings.ToLower(signal)

	class := DeviceDesktop
	if mobilePattern.MatchString(lower) {
		class = DeviceMobile
	}

	switch {
	case iosPattern.MatchString(lower):
		return Classification{Platform: PlatformIOS, DeviceClass: class}
	case androidPattern.MatchString(lower):
		return Classification{Platform: PlatformAndroid, DeviceClass: class}
	default:
		return Classification{Platform: PlatformOther, DeviceClass: class}
	}
}

func (c Classification) IsMobile() bool {
	return c.DeviceClass == DeviceMobile
}
