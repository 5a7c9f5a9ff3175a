package dedup

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
	"github.com/jonathan/applier/internal/types"
)

// trackingParams are query parameters that never identify a listing
var trackingParams = map[string]bool{
	"gclid":   true,
	"fbclid":  true,
	"msclkid": true,
	"mc_cid":  true,
	"mc_eid":  true,
	"trk":     true,
}

const normalizeFlags = purell.FlagsSafe | purell.FlagRemoveFragment | purell.FlagSortQuery | purell.FlagRemoveDuplicateSlashes

// NormalizeURL returns the canonical form of a job URL used as the dedup key.
// Only absolute http(s) URLs with a host are accepted.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &types.ErrValidation{Field: "job_url", Message: "must not be empty"}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", &types.ErrValidation{Field: "job_url", Message: "malformed URL"}
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", &types.ErrValidation{Field: "job_url", Message: "scheme must be http or https"}
	}
	if u.Hostname() == "" {
		return "", &types.ErrValidation{Field: "job_url", Message: "missing host"}
	}

	if u.RawQuery != "" {
		query := u.Query()
		for key := range query {
			if isTrackingParam(key) {
				query.Del(key)
			}
		}
		u.RawQuery = query.Encode()
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return purell.NormalizeURL(u, normalizeFlags), nil
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	return strings.HasPrefix(key, "utm_") || trackingParams[key]
}
