// Package bypass encodes access codes into the opaque token carried by the
// preview URL's "access" query parameter.
//
// The token is a reversible base64 encoding of the access code. It is an
// obfuscation convenience that lets a scanned QR code or a forwarded link skip
// manual code entry; it is NOT a credential. Anyone holding a token can recover
// the access code, and tokens never expire. A signed, expiring token or
// server-side gating would be needed for a real authentication boundary.
package bypass

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var ErrDecode = errors.New("malformed bypass token")

// Codec turns an access code into a URL token and back.
type Codec interface {
	Encode(code string) string
	Decode(token string) (string, error)
}

// Base64Codec is the default Codec. Tokens use the URL-safe alphabet without
// padding so they can be appended to a query string without escaping.
type Base64Codec struct{}

// legacy tokens were produced by the browser's btoa, which uses the standard
// alphabet; an unescaped '+' arrives as a space once the query is parsed.
var alphabetNormalizer = strings.NewReplacer("+", "-", "/", "_", " ", "-")

func (Base64Codec) Encode(code string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(code))
}

func (Base64Codec) Decode(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty", ErrDecode)
	}
	normalized := strings.TrimRight(alphabetNormalizer.Replace(token), "=")
	decoded, err := base64.RawURLEncoding.DecodeString(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return string(decoded), nil
}

// Default is the codec used by the service and the CLI.
var Default Codec = Base64Codec{}
