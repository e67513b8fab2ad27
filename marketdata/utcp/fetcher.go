package utcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	goutcp "github.com/universal-tool-calling-protocol/go-utcp"
	"github.com/w-h-a/grounded/errs"
	"github.com/w-h-a/grounded/marketdata"
)

type utcpFetcher struct {
	options marketdata.Options
	client  goutcp.UtcpClientInterface
}

func (f *utcpFetcher) Fetch(ctx context.Context, endpointId string, params map[string]string) (marketdata.Record, error) {
	ep, ok := f.options.Catalog.Lookup(endpointId)
	if !ok {
		return marketdata.Record{}, fmt.Errorf("%w: unknown endpoint %q", errs.ErrPermanent, endpointId)
	}

	params = marketdata.NormalizeParams(params)

	args := make(map[string]any, len(params))
	for k, v := range params {
		args[k] = v
	}

	raw, err := f.client.CallTool(ctx, ep.Path, args)
	if err != nil {
		return marketdata.Record{}, err
	}

	data, err := toMap(raw)
	if err != nil {
		return marketdata.Record{}, fmt.Errorf("%w: %s returned malformed result: %v", errs.ErrPermanent, endpointId, err)
	}

	return marketdata.NewRecord(ep, params, data, f.options.Clock()), nil
}

func toMap(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case string:
		var data map[string]any
		if err := json.Unmarshal([]byte(v), &data); err != nil {
			return nil, err
		}
		return data, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var data map[string]any
		if err := json.Unmarshal(b, &data); err != nil {
			return nil, err
		}
		return data, nil
	}
}

func (f *utcpFetcher) createTempConfig(addrs []string) (string, error) {
	type providerConfig struct {
		Type    string            `json:"provider_type"`
		Name    string            `json:"name"`
		URL     string            `json:"url"`
		Method  string            `json:"http_method"`
		Headers map[string]string `json:"headers"`
	}

	config := struct {
		Providers []providerConfig `json:"providers"`
	}{}

	for _, u := range addrs {
		parsed, err := url.Parse(u)
		if err != nil {
			return "", err
		}
		config.Providers = append(config.Providers, providerConfig{
			Type:   "http",
			Name:   parsed.Hostname(),
			URL:    u,
			Method: "POST",
			Headers: map[string]string{
				"Content-Type": "application/json",
			},
		})
	}

	file, err := os.CreateTemp("", "utcp_config_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(config); err != nil {
		return "", err
	}

	return file.Name(), nil
}

func NewFetcher(opts ...marketdata.Option) marketdata.Fetcher {
	options := marketdata.NewOptions(opts...)

	f := &utcpFetcher{
		options: options,
	}

	if client, ok := UtcpClientFrom(options.Context); ok {
		f.client = client
		return f
	}

	var configPath string

	if addrs, ok := ProviderAddrsFrom(options.Context); ok && len(addrs) > 0 {
		tmpPath, err := f.createTempConfig(addrs)
		if err != nil {
			detail := "failed to write utcp provider config"
			slog.ErrorContext(context.Background(), detail, "error", err)
			panic(detail)
		}
		configPath = tmpPath
		defer os.Remove(tmpPath)
	}

	client, err := goutcp.NewUTCPClient(
		context.Background(),
		&goutcp.UtcpClientConfig{
			ProvidersFilePath: configPath,
		},
		nil,
		nil,
	)
	if err != nil {
		detail := "failed to create utcp market data client"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	f.client = client

	return f
}
