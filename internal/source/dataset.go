package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wanderapp/places-importer/internal/dto"
)

// DatasetReader pages through a remote crawler dataset over HTTP. Each page
// is fetched lazily as the consumer drains the previous one.
type DatasetReader struct {
	client   *http.Client
	baseURL  string
	token    string
	pageSize int

	buf       []dto.RawScrapedRecord
	pos       int
	offset    int
	exhausted bool
}

// NewDatasetReader wires a dataset items endpoint; pageSize defaults to 500.
func NewDatasetReader(client *http.Client, baseURL, token string, pageSize int) *DatasetReader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if pageSize <= 0 {
		pageSize = 500
	}
	return &DatasetReader{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		pageSize: pageSize,
	}
}

// Next returns the following record, fetching the next page when the
// current one is drained. Auth failures and malformed pages are fatal.
func (r *DatasetReader) Next(ctx context.Context) (*dto.RawScrapedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.pos >= len(r.buf) {
		if r.exhausted {
			return nil, ErrDone
		}
		if err := r.fetchPage(ctx); err != nil {
			return nil, err
		}
		if len(r.buf) == 0 {
			return nil, ErrDone
		}
	}

	rec := r.buf[r.pos]
	r.pos++
	return &rec, nil
}

func (r *DatasetReader) fetchPage(ctx context.Context) error {
	pageURL, err := r.buildPageURL()
	if err != nil {
		return &FatalError{Reason: "build page url", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return &FatalError{Reason: "build page request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return &FatalError{Reason: "fetch dataset page", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &FatalError{Reason: fmt.Sprintf("dataset authentication rejected (status %d)", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return &FatalError{Reason: fmt.Sprintf("dataset page fetch failed (status %d, offset %d)", resp.StatusCode, r.offset)}
	}

	var page []dto.RawScrapedRecord
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&page); err != nil {
		return &FatalError{Reason: fmt.Sprintf("decode dataset page at offset %d", r.offset), Err: err}
	}

	r.buf = page
	r.pos = 0
	r.offset += len(page)
	if len(page) < r.pageSize {
		r.exhausted = true
	}
	return nil
}

func (r *DatasetReader) buildPageURL() (string, error) {
	u, err := url.Parse(r.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("offset", strconv.Itoa(r.offset))
	q.Set("limit", strconv.Itoa(r.pageSize))
	if r.token != "" {
		q.Set("token", r.token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
