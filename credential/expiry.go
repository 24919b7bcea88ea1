package credential

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Expiry extracts the exp claim from a JWT access token without verifying
// its signature. Verification is the server's job; the client only uses the
// expiry as a local hint. Opaque tokens return the zero time.
func Expiry(accessToken string) (time.Time, error) {
	if strings.Count(accessToken, ".") != 2 {
		// Not a JWT; nothing to introspect.
		return time.Time{}, nil
	}

	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, nil
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}
