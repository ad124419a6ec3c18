// Package downloader fetches source archives referenced by descriptors.
package downloader

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Download fetches the content at url and returns it as a byte slice.
// file:// URLs are read straight from the local filesystem; http(s) URLs
// must answer 200 OK within the given timeout.
func Download(url string, timeout time.Duration) ([]byte, error) {
	if strings.HasPrefix(url, "file://") {
		data, err := os.ReadFile(strings.TrimPrefix(url, "file://"))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", url, err)
		}
		return data, nil
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to perform GET request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download from %s: received status code %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s: %w", url, err)
	}

	return body, nil
}
