// Package version holds the build version and the release check behind
// the version command.
package version

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Version is the current hatloop release.
const Version = "0.1.0"

// releaseURL is a variable so tests can point the check at a local
// server.
var releaseURL = "https://api.github.com/repos/a-marczewski/hatloop/releases/latest"

// release is the subset of the GitHub release payload the check reads.
type release struct {
	TagName string `json:"tag_name"`
}

// CheckForUpdates asks GitHub for the latest release tag. It returns
// the newer version string, or "" when the current build is up to date
// or no release exists yet.
func CheckForUpdates() (string, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(http.MethodGet, releaseURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build release request: %w", err)
	}
	req.Header.Set("User-Agent", "hatloop/"+Version)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("release check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release check returned status %d", resp.StatusCode)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return "", fmt.Errorf("failed to decode release payload: %w", err)
	}

	latest := strings.TrimPrefix(rel.TagName, "v")
	if IsNewer(Version, latest) {
		return latest, nil
	}
	return "", nil
}

// IsNewer reports whether latest is a strictly newer dotted version
// than current. Non-numeric segments compare as zero; with all shared
// segments equal, the longer version wins.
func IsNewer(current, latest string) bool {
	if latest == "" {
		return false
	}
	cur := strings.Split(current, ".")
	lat := strings.Split(latest, ".")
	for i := 0; i < len(cur) && i < len(lat); i++ {
		c, _ := strconv.Atoi(cur[i])
		l, _ := strconv.Atoi(lat[i])
		if c != l {
			return l > c
		}
	}
	return len(lat) > len(cur)
}
