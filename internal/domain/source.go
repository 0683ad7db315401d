package domain

import (
	"regexp"
	"strings"
)

// DefaultAllowedHosts are the video hosts accepted when none are configured.
var DefaultAllowedHosts = []string{"youtube.com", "youtu.be", "youtube-nocookie.com"}

// SourceValidator checks submitted URLs against an allow-list of hosts:
// optional scheme, optional subdomain, allowed host, then a non-empty path.
type SourceValidator struct {
	pattern *regexp.Regexp
}

func NewSourceValidator(hosts []string) *SourceValidator {
	if len(hosts) == 0 {
		hosts = DefaultAllowedHosts
	}
	quoted := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(h))
	}
	expr := `^(?i)(https?://)?([a-z0-9-]+\.)*(` + strings.Join(quoted, "|") + `)/.+$`
	return &SourceValidator{pattern: regexp.MustCompile(expr)}
}

// Validate trims raw and returns the URL to submit, or ErrMissingURL /
// ErrInvalidURL.
func (v *SourceValidator) Validate(raw string) (string, error) {
	url := strings.TrimSpace(raw)
	if url == "" {
		return "", ErrMissingURL
	}
	if strings.ContainsAny(url, " \t\r\n") || !v.pattern.MatchString(url) {
		return "", ErrInvalidURL
	}
	return url, nil
}
