package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

const (
	releaseCheckTimeout = 15 * time.Second
	// releasesAPI is the Forgejo listing of published scalectl releases.
	releasesAPI = "https://git.skobk.in/api/v1/repos/skobkin/scalectl/releases?draft=false&pre-release=false&limit=10"
)

var errNoReleases = errors.New("no published release carries a semver tag")

// Release is one published scalectl build.
type Release struct {
	Version     string
	Notes       string
	URL         string
	PublishedAt time.Time
}

// ReleaseCheck compares the running build against the newest release.
type ReleaseCheck struct {
	Current string
	Latest  Release
	Newer   bool
	// Ignored counts listed releases whose tag is not a stable semver.
	Ignored int
}

// ReleaseChecker queries the forge for releases. The zero value checks
// BuildVersion against the public release listing.
type ReleaseChecker struct {
	Current  string
	Endpoint string
	Client   *http.Client
	Logger   *slog.Logger
}

type forgejoRelease struct {
	TagName     string    `json:"tag_name"`
	Body        string    `json:"body"`
	HTMLURL     string    `json:"html_url"`
	PublishedAt time.Time `json:"published_at"`
}

// Check picks the highest stable release, regardless of listing order.
func (c ReleaseChecker) Check(ctx context.Context) (ReleaseCheck, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default().With("component", "release_check")
	}
	res := ReleaseCheck{Current: strings.TrimSpace(c.Current)}
	if res.Current == "" {
		res.Current = BuildVersion()
	}

	listed, err := c.list(ctx)
	if err != nil {
		return res, err
	}

	found := false
	for _, item := range listed {
		tag := normalizeSemver(item.TagName)
		if !semver.IsValid(tag) || semver.Prerelease(tag) != "" {
			res.Ignored++
			continue
		}
		if found && semver.Compare(tag, normalizeSemver(res.Latest.Version)) <= 0 {
			continue
		}
		found = true
		res.Latest = Release{
			Version:     strings.TrimSpace(item.TagName),
			Notes:       strings.TrimSpace(item.Body),
			URL:         strings.TrimSpace(item.HTMLURL),
			PublishedAt: item.PublishedAt,
		}
	}
	if !found {
		return res, errNoReleases
	}

	res.Newer = isReleaseNewer(res.Current, res.Latest.Version)
	logger.Debug("release check done", "current", res.Current, "latest", res.Latest.Version, "newer", res.Newer, "ignored", res.Ignored)

	return res, nil
}

func (c ReleaseChecker) list(ctx context.Context) ([]forgejoRelease, error) {
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = releasesAPI
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: releaseCheckTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build release request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", Name+"/"+BuildVersion())

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if msg := strings.TrimSpace(string(snippet)); msg != "" {
			return nil, fmt.Errorf("list releases: %s: %s", resp.Status, msg)
		}
		return nil, fmt.Errorf("list releases: %s", resp.Status)
	}

	var listed []forgejoRelease
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		return nil, fmt.Errorf("decode release list: %w", err)
	}

	return listed, nil
}

// isReleaseNewer treats an unparseable current version such as "dev" as
// older than any valid release.
func isReleaseNewer(current, latest string) bool {
	latest = normalizeSemver(latest)
	if !semver.IsValid(latest) {
		return false
	}
	current = normalizeSemver(current)

	return !semver.IsValid(current) || semver.Compare(current, latest) < 0
}
