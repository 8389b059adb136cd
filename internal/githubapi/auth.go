package githubapi

import (
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/oauth2"
)

const (
	apiVersion       = "2022-11-28"
	mediaTypeJSON    = "application/vnd.github+json"
	headerAPIVersion = "X-GitHub-Api-Version"
)

// fine-grained and new-style personal access tokens are authenticated with the Bearer scheme
var bearerTokenPrefixes = []string{"ghp_", "github_pat_"}

// AuthScheme returns the Authorization scheme GitHub expects for the given token.
func AuthScheme(token string) string {
	for _, prefix := range bearerTokenPrefixes {
		if strings.HasPrefix(token, prefix) {
			return "Bearer"
		}
	}
	return "token"
}

var tokenFormat = regexp.MustCompile(`^(?i:[a-f0-9]{40})$|^ghp_[A-Za-z0-9]{36}$|^github_pat_[A-Za-z0-9_]{22,}$`)

// ValidTokenFormat reports whether token looks like a classic, fine-grained or legacy hex token.
func ValidTokenFormat(token string) bool {
	return tokenFormat.MatchString(token)
}

// NewToken wraps an access token so that oauth2 emits the matching Authorization scheme.
func NewToken(token string) *oauth2.Token {
	return &oauth2.Token{AccessToken: token, TokenType: AuthScheme(token)}
}

// SetAuthHeader sets the Authorization header on r, if token is not empty.
func SetAuthHeader(r *http.Request, token string) {
	if token == "" {
		return
	}
	NewToken(token).SetAuthHeader(r)
}

// SetAPIHeaders sets the Accept and API version headers of the GitHub REST API.
func SetAPIHeaders(h http.Header) {
	h.Set("Accept", mediaTypeJSON)
	h.Set(headerAPIVersion, apiVersion)
}

type headerTransport struct {
	base http.RoundTripper
}

func (t *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	req := r.Clone(r.Context())
	SetAPIHeaders(req.Header)
	return t.base.RoundTrip(req)
}
