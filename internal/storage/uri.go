package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// Location is a bucket/key pair.
type Location struct {
	Bucket string
	Key    string
}

// ParseURI accepts s3://bucket/key and the S3 https forms
// (https://s3.<region>.amazonaws.com/bucket/key, https://bucket.s3.<region>.amazonaws.com/key)
// that transcription services report for their output.
func ParseURI(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("invalid object uri %q: %w", raw, err)
	}

	path := strings.TrimPrefix(u.Path, "/")
	switch u.Scheme {
	case "s3":
		if u.Host == "" || path == "" {
			return Location{}, fmt.Errorf("invalid s3 uri %q", raw)
		}
		return Location{Bucket: u.Host, Key: path}, nil
	case "http", "https":
		host := strings.ToLower(u.Host)
		if !strings.Contains(host, "amazonaws.com") {
			return Location{}, fmt.Errorf("not an s3 url: %q", raw)
		}
		if strings.HasPrefix(host, "s3.") || strings.HasPrefix(host, "s3-") {
			parts := strings.SplitN(path, "/", 2)
			if len(parts) != 2 || parts[1] == "" {
				return Location{}, fmt.Errorf("invalid path-style s3 url %q", raw)
			}
			return Location{Bucket: parts[0], Key: parts[1]}, nil
		}
		idx := strings.Index(host, ".s3")
		if idx <= 0 || path == "" {
			return Location{}, fmt.Errorf("invalid virtual-hosted s3 url %q", raw)
		}
		return Location{Bucket: u.Host[:idx], Key: path}, nil
	default:
		return Location{}, fmt.Errorf("unsupported object uri scheme %q", u.Scheme)
	}
}
