// Package datastore implements the metadata collection and the derived
// object-store keys. Blobs themselves live behind the CDN; the server
// only ever computes keys and probes for presence.
package datastore

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ghostPersistenceLimit splits the key namespace: low persistence ids
// are per-player ghost slots, everything else is a TV replay object.
const ghostPersistenceLimit = 1024

// ObjectKey derives the object-store key for a slot.
func ObjectKey(pid uint32, persistenceID uint32, objectID uint64) string {
	if persistenceID < ghostPersistenceLimit {
		return "ghosts/" + strconv.FormatUint(uint64(pid), 10) + "/" + strconv.FormatUint(uint64(persistenceID), 10) + ".bin"
	}
	return "mktv/" + strconv.FormatUint(objectID, 10) + ".bin"
}

// ObjectInfo is a presence probe result.
type ObjectInfo struct {
	Present bool
	Size    uint32
	URL     string
}

// Prober answers whether a blob exists behind the CDN and resolves the
// public address clients read and write blobs at.
type Prober interface {
	Head(ctx context.Context, key string) (ObjectInfo, error)
	URL(key string) string
}

// CDNProber probes with a HEAD request against the public CDN domain.
type CDNProber struct {
	bucket string
	domain string
	http   *http.Client
}

func NewCDNProber(bucket, domain string) *CDNProber {
	return &CDNProber{
		bucket: bucket,
		domain: domain,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// URL returns the public address for a key.
func (p *CDNProber) URL(key string) string {
	return fmt.Sprintf("https://%s.%s/%s", p.bucket, p.domain, key)
}

// Head probes the key. Any non-200 answer reads as absent with size 0;
// the url is returned either way so callers can hand it to the client.
func (p *CDNProber) Head(ctx context.Context, key string) (ObjectInfo, error) {
	url := p.URL(key)
	info := ObjectInfo{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return info, err
	}
	res, err := p.http.Do(req)
	if err != nil {
		return info, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return info, nil
	}
	info.Present = true
	if res.ContentLength > 0 {
		info.Size = uint32(res.ContentLength)
	}
	return info, nil
}
