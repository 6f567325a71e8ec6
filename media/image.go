// Package media downloads question images and fingerprints them for cache keys.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const (
	// Quiz images are small; anything larger is not worth sending to a model.
	maxImageSize     = 5 * 1024 * 1024
	fingerprintChars = 16
	fetchTimeout     = 15 * time.Second
)

// ErrImageTooLarge is returned when an image exceeds the download limit
var ErrImageTooLarge = eris.New("image exceeds size limit")

// Fetcher downloads images over HTTP
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher; a nil client gets a default one with a timeout
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &Fetcher{client: client}
}

// Fetch downloads the image at url
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create image request")
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "download image")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("image download failed with status %d", resp.StatusCode)
	}
	if resp.ContentLength > maxImageSize {
		return nil, ErrImageTooLarge
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, eris.Wrap(err, "read image")
	}
	if len(body) > maxImageSize {
		return nil, ErrImageTooLarge
	}
	return body, nil
}

// Image is a downloaded question image and its fingerprint.
// Data is nil when the download failed and the fingerprint fell back to the URL.
type Image struct {
	URL         string
	Data        []byte
	Fingerprint string
}

// Load downloads the image and fingerprints its content. When the download fails the
// URL itself is fingerprinted so the question still gets a stable cache key.
func (f *Fetcher) Load(ctx context.Context, url string) Image {
	img := Image{URL: url}
	data, err := f.Fetch(ctx, url)
	if err != nil {
		log.Printf("Failed to download image %s, falling back to URL fingerprint: %v", url, err)
		img.Fingerprint = Fingerprint([]byte(url))
		return img
	}
	img.Data = data
	img.Fingerprint = Fingerprint(data)
	return img
}

// Fingerprint returns the first 16 hex chars of the SHA-256 of data
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:fingerprintChars]
}
