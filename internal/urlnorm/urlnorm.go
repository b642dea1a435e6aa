// Package urlnorm turns submitted URLs into identity keys.
package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"crusty-reader/internal/site"

	"github.com/samber/lo"
)

// ErrInvalidURL is returned for input that is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid url")

// trackingParams is the deny-list of query keys that never affect content.
// Derived from the ClearURLs global rules.
var trackingParams = regexp.MustCompile(`^(?:` + strings.Join([]string{
	`utm(?:_[a-z_]*)?`,
	`ga_[a-z_]+`,
	`yclid`,
	`_openstat`,
	`fb_action_(?:types|ids)`,
	`fb_(?:source|ref)`,
	`fbclid`,
	`action_(?:object|type|ref)_map`,
	`gs_l`,
	`mkt_tok`,
	`hmb_(?:campaign|medium|source)`,
	`ref_?`,
	`referrer`,
	`gclid`,
	`dclid`,
	`msclkid`,
	`twclid`,
	`igshid`,
	`otm_[a-z_]*`,
	`cmpid`,
	`os_ehash`,
	`_ga`,
	`_gl`,
	`__twitter_impression`,
	`wt_?z?mc`,
	`wtrid`,
	`mc_(?:cid|eid)`,
	`spm`,
	`vn(?:_[a-z]*)+`,
	`tracking_source`,
	`ceneo_spo`,
	`echobox`,
	`source`,
	`campaign`,
}, "|") + `)$`)

// IsTrackingParam reports whether key is on the tracking deny-list.
func IsTrackingParam(key string) bool {
	return trackingParams.MatchString(strings.ToLower(key))
}

// Normalize validates rawURL and returns its canonical form, used both as the
// fetch target and as the storage identity key.
func Normalize(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" || u.Opaque != "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	u.Host = dropDefaultPort(u.Scheme, strings.ToLower(u.Host))
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	u.Fragment = ""
	u.RawFragment = ""

	fam := site.ForHost(u.Hostname())
	u.RawQuery = cleanQuery(u.RawQuery, fam)
	u.ForceQuery = false

	return u.String(), nil
}

// dropDefaultPort removes an explicit :80 on http and :443 on https.
func dropDefaultPort(scheme, host string) string {
	port := map[string]string{"http": "80", "https": "443"}[scheme]
	host = strings.TrimSuffix(host, ":"+port)
	return strings.TrimSuffix(host, ":")
}

type param struct {
	key string // decoded, used for filtering and ordering
	raw string // re-encoded pair, or the original segment if it would not decode
}

// cleanQuery drops tracking and family-specific parameters and re-encodes the
// rest sorted by key. It works on the raw query so that segments url.Query
// would discard (a ';' or a bad escape) stay part of the identity.
func cleanQuery(rawQuery string, fam *site.Family) string {
	params := lo.FilterMap(strings.Split(rawQuery, "&"), func(seg string, _ int) (param, bool) {
		if seg == "" {
			return param{}, false
		}
		rawKey, rawVal, _ := strings.Cut(seg, "=")
		p := param{key: rawKey, raw: seg}
		key, kerr := url.QueryUnescape(rawKey)
		if kerr == nil {
			p.key = key
		}
		if val, verr := url.QueryUnescape(rawVal); kerr == nil && verr == nil {
			p.raw = url.QueryEscape(key) + "=" + url.QueryEscape(val)
		}
		return p, true
	})
	params = lo.Filter(params, func(p param, _ int) bool {
		if IsTrackingParam(p.key) {
			return false
		}
		if fam != nil && lo.Contains(fam.StripParams, p.key) {
			return false
		}
		return true
	})
	sort.SliceStable(params, func(i, j int) bool { return params[i].key < params[j].key })

	return strings.Join(lo.Map(params, func(p param, _ int) string { return p.raw }), "&")
}
