package tts

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// FindFirstResponsiveHost probes the candidate hosts in order and returns
// the base URL of the first one that answers an HTTP GET with status 200
// or 404 (a bare VOICEVOX engine answers 404 on its root path). Hostnames
// without a scheme get http://, and port is appended when non-zero.
// Duplicate candidates are probed once. Returns "" when nothing responds.
func FindFirstResponsiveHost(ctx context.Context, hosts []string, port int, timeout time.Duration) string {
	if timeout <= 0 {
		timeout = time.Second
	}
	client := &http.Client{Timeout: timeout}

	seen := make(map[string]struct{})
	for _, host := range hosts {
		url := normalizeHostURL(host, port)
		if url == "" {
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound {
			return url
		}
	}
	return ""
}

// normalizeHostURL builds the probe URL for one candidate.
func normalizeHostURL(host string, port int) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	url := host
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	// Hosts that already name a port keep it.
	rest := url[strings.Index(url, "://")+3:]
	if port > 0 && !strings.Contains(rest, ":") {
		url = fmt.Sprintf("%s:%d", url, port)
	}
	return url
}
