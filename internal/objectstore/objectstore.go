// Package objectstore addresses staged artifacts in an S3-compatible blob
// store. Puts always overwrite; objects are never versioned.
package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go-etl-pipeline/internal/model"
)

const (
	rawPrefix       = "row_data"
	aggregatePrefix = "aggregated_data"
	csvContentType  = "text/csv"
)

// Ref locates one object.
type Ref struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Path renders the ref as bucket/key.
func (r Ref) Path() string { return r.Bucket + "/" + r.Key }

// URL renders the ref as s3://bucket/key.
func (r Ref) URL() string { return "s3://" + r.Path() }

func (r Ref) String() string { return r.URL() }

// ParseURL splits an s3://bucket/key URL into a Ref.
func ParseURL(s string) (Ref, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Ref{}, fmt.Errorf("objectstore: parse %q: %w", s, err)
	}
	if u.Scheme != "s3" {
		return Ref{}, fmt.Errorf("objectstore: %q is not an s3:// url", s)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Ref{}, fmt.Errorf("objectstore: %q has no bucket or key", s)
	}
	return Ref{Bucket: u.Host, Key: key}, nil
}

// RawUsersRef is the snapshot key for one logical date. It depends on the
// date alone, so every run for that date targets the same object.
func RawUsersRef(bucket string, date model.LogicalDate) Ref {
	return Ref{Bucket: bucket, Key: fmt.Sprintf("%s/users_%s.csv", rawPrefix, date)}
}

// AggregateRef is the regional aggregate key, scoped by calendar year only.
func AggregateRef(bucket string, year int) Ref {
	return Ref{Bucket: bucket, Key: fmt.Sprintf("%s/users_agg_by_region_%d.csv", aggregatePrefix, year)}
}

// Store is the blob interface the stages depend on.
type Store interface {
	// PutFile uploads localPath to ref, replacing any existing object.
	PutFile(ctx context.Context, ref Ref, localPath, contentType string) error
	// GetFile downloads ref into localPath.
	GetFile(ctx context.Context, ref Ref, localPath string) error
}

// CSVContentType is used for every artifact this pipeline writes.
func CSVContentType() string { return csvContentType }
