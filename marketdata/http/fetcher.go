package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/w-h-a/grounded/errs"
	"github.com/w-h-a/grounded/marketdata"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type httpFetcher struct {
	options marketdata.Options
	client  *http.Client
}

func (f *httpFetcher) Fetch(ctx context.Context, endpointId string, params map[string]string) (marketdata.Record, error) {
	ep, ok := f.options.Catalog.Lookup(endpointId)
	if !ok {
		return marketdata.Record{}, fmt.Errorf("%w: unknown endpoint %q", errs.ErrPermanent, endpointId)
	}

	params = marketdata.NormalizeParams(params)

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	u := strings.TrimRight(f.options.Location, "/") + "/" + strings.TrimLeft(ep.Path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return marketdata.Record{}, fmt.Errorf("%w: %v", errs.ErrPermanent, err)
	}

	req.Header.Set("Accept", "application/json")

	if len(f.options.ApiKey) > 0 {
		req.Header.Set("Authorization", "Bearer "+f.options.ApiKey)
	}

	rsp, err := f.client.Do(req)
	if err != nil {
		return marketdata.Record{}, err
	}
	defer rsp.Body.Close()

	body, err := io.ReadAll(rsp.Body)
	if err != nil {
		return marketdata.Record{}, err
	}

	switch {
	case rsp.StatusCode == http.StatusTooManyRequests:
		return marketdata.Record{}, fmt.Errorf("%w: %s returned 429", errs.ErrRateLimitExceeded, endpointId)
	case rsp.StatusCode >= 500:
		return marketdata.Record{}, fmt.Errorf("%s returned %d", endpointId, rsp.StatusCode)
	case rsp.StatusCode >= 400:
		return marketdata.Record{}, fmt.Errorf("%w: %s returned %d: %s", errs.ErrPermanent, endpointId, rsp.StatusCode, string(body))
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return marketdata.Record{}, fmt.Errorf("%w: %s returned malformed body: %v", errs.ErrPermanent, endpointId, err)
	}

	return marketdata.NewRecord(ep, params, data, f.options.Clock()), nil
}

func NewFetcher(opts ...marketdata.Option) marketdata.Fetcher {
	options := marketdata.NewOptions(opts...)

	f := &httpFetcher{
		options: options,
		client: &http.Client{
			Timeout:   options.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	return f
}
