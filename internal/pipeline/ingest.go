package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go-etl-pipeline/internal/model"
)

// MaxRecords is the largest batch the source API serves in one call.
const MaxRecords = 100

// sourceFields are requested from the API in this order.
var sourceFields = []string{
	"FirstName", "LastName", "DateOfBirth", "Gender", "Phone",
	"Login", "Password", "Email", "Country", "Region",
}

// RawUser is one record as the source API returns it.
type RawUser struct {
	FirstName   string `json:"FirstName"`
	LastName    string `json:"LastName"`
	DateOfBirth string `json:"DateOfBirth"`
	Gender      string `json:"Gender"`
	Phone       string `json:"Phone"`
	Login       string `json:"Login"`
	Password    string `json:"Password"`
	Email       string `json:"Email"`
	Country     string `json:"Country"`
	Region      string `json:"Region"`
}

// Source yields one batch of raw user records.
type Source interface {
	Fetch(ctx context.Context) ([]RawUser, error)
}

// HTTPClient is the part of *http.Client the source needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SourceClient pulls synthetic users from the random data API.
type SourceClient struct {
	client  HTTPClient
	baseURL string
	count   func() int
}

// SourceOption customizes a SourceClient.
type SourceOption func(*SourceClient)

// WithCount replaces the random batch size. Used by tests.
func WithCount(f func() int) SourceOption {
	return func(s *SourceClient) { s.count = f }
}

func NewSourceClient(client HTTPClient, baseURL string, opts ...SourceOption) *SourceClient {
	s := &SourceClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		count:   func() int { return rand.IntN(MaxRecords) + 1 },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch requests a random number of records between 1 and MaxRecords.
func (s *SourceClient) Fetch(ctx context.Context) ([]RawUser, error) {
	n := s.count()
	if n < 1 || n > MaxRecords {
		return nil, model.DataFormat("source request", fmt.Errorf("record count %d outside [1, %d]", n, MaxRecords))
	}

	q := url.Values{}
	q.Set("count", strconv.Itoa(n))
	q.Set("params", strings.Join(sourceFields, ","))
	target := s.baseURL + "/?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, model.DataFormat("source request", err)
	}
	slog.DebugContext(ctx, "requesting source batch", "url", s.baseURL, "count", n)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, model.TransientIO("source request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.TransientIO("source read", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, model.TransientIO("source request", err)
		}
		return nil, model.DataFormat("source request", err)
	}

	users, err := decodeUsers(body)
	if err != nil {
		return nil, model.DataFormat("source decode", err)
	}
	return users, nil
}

// decodeUsers accepts either an array of records or, as the API answers
// for count=1, a single object.
func decodeUsers(body []byte) ([]RawUser, error) {
	trimmed := strings.TrimSpace(string(body))
	switch {
	case strings.HasPrefix(trimmed, "["):
		var users []RawUser
		if err := json.Unmarshal(body, &users); err != nil {
			return nil, err
		}
		return users, nil
	case strings.HasPrefix(trimmed, "{"):
		var u RawUser
		if err := json.Unmarshal(body, &u); err != nil {
			return nil, err
		}
		return []RawUser{u}, nil
	default:
		return nil, fmt.Errorf("unexpected JSON structure")
	}
}
