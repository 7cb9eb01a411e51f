// Package idgen generates share link ids and access codes backed by nanoid.
package idgen

import (
	"fmt"
	"regexp"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	ShareLinkPrefix = "ar-"
	shareLinkAlpha  = "abcdefghijklmnopqrstuvwxyz0123456789"
	shareLinkLength = 6

	accessCodeAlpha  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	accessCodeLength = 6

	// MaxAccessCodeLength bounds producer-chosen codes.
	MaxAccessCodeLength = 8
)

var accessCodePattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ShareLinkID returns "ar-" followed by six lowercase alphanumerics.
func ShareLinkID() (string, error) {
	id, err := nanoid.Generate(shareLinkAlpha, shareLinkLength)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return ShareLinkPrefix + id, nil
}

// AccessCode returns six uppercase alphanumerics.
func AccessCode() (string, error) {
	code, err := nanoid.Generate(accessCodeAlpha, accessCodeLength)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return code, nil
}

// DeviceID returns an opaque id for a visitor's browser.
func DeviceID() (string, error) {
	id, err := nanoid.New()
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return "dev_" + id, nil
}

// ValidAccessCode reports whether code is 1 to 8 ASCII letters or digits.
func ValidAccessCode(code string) bool {
	return len(code) <= MaxAccessCodeLength && accessCodePattern.MatchString(code)
}
