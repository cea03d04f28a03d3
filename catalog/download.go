// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/lux-foundation/lux/lib/netutil"
)

// ProgressFunc receives download progress as a percentage in [0, 100].
// It is invoked from the download goroutine after each chunk; keep it
// cheap.
type ProgressFunc func(percent float64)

// Download streams an archive from archiveURL into the file at
// destination, reporting progress through onProgress.
//
// Progress is computed from bytes received over the response's
// declared Content-Length. When the server omits the length, progress
// reporting is skipped entirely rather than reporting garbage — the
// transfer still completes, the caller just never sees 100.
//
// The destination file is created (truncated if present). On error the
// partial file is left in place for the caller to clean up or inspect.
func (c *Client) Download(ctx context.Context, archiveURL, destination string, onProgress ProgressFunc) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return fmt.Errorf("catalog: creating download request: %w", err)
	}
	request.Header.Set("User-Agent", netutil.UserAgent())

	response, err := c.downloadClient.Do(request)
	if err != nil {
		return fmt.Errorf("catalog: downloading %s: %w", archiveURL, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &APIError{
			StatusCode: response.StatusCode,
			Endpoint:   archiveURL,
			Body:       netutil.ErrorBody(response.Body),
		}
	}

	file, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("catalog: creating %s: %w", destination, err)
	}
	defer file.Close()

	var writer io.Writer = file
	if onProgress != nil && response.ContentLength > 0 {
		writer = io.MultiWriter(file, &progressCounter{
			total:      response.ContentLength,
			onProgress: onProgress,
		})
	}

	if _, err := io.Copy(writer, response.Body); err != nil {
		return fmt.Errorf("catalog: streaming %s: %w", archiveURL, err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("catalog: finishing %s: %w", destination, err)
	}

	c.logger.Debug("archive downloaded",
		"url", archiveURL,
		"destination", destination,
		"bytes", response.ContentLength,
	)
	return nil
}

// progressCounter converts a byte stream position into percentage
// callbacks. Only constructed when the total size is known, so the
// division is always meaningful.
type progressCounter struct {
	total      int64
	received   int64
	onProgress ProgressFunc
}

func (p *progressCounter) Write(data []byte) (int, error) {
	p.received += int64(len(data))
	p.onProgress(float64(p.received) / float64(p.total) * 100)
	return len(data), nil
}
