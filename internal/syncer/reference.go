package syncer

import (
	"context"
	"net/http"
	"time"

	"github.com/yanun0323/errors"

	"main/pkg/exception"
)

// HTTPReference reads a reference timestamp from the Date header of an
// HTTP endpoint. Coarse (second resolution) but dependency-free on the
// remote side; tolerances should stay well above one second.
type HTTPReference struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPReference creates a reference over url. A nil client uses a
// default with no timeout; the manager bounds each sample with its own
// deadline.
func NewHTTPReference(name, url string, client *http.Client) *HTTPReference {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPReference{name: name, url: url, client: client}
}

func (r *HTTPReference) Name() string {
	return r.name
}

// Now fetches the endpoint and parses its Date header.
func (r *HTTPReference) Now(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.url, nil)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "build request")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return time.Time{}, errors.Wrap(exception.ErrReferenceUnreachable, err.Error())
	}
	defer resp.Body.Close()

	date := resp.Header.Get("Date")
	if date == "" {
		return time.Time{}, errors.Wrap(exception.ErrReferenceUnreachable, "missing date header")
	}
	ts, err := http.ParseTime(date)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse date header")
	}
	return ts, nil
}
