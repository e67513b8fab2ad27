package utcp

import (
	"context"

	"github.com/universal-tool-calling-protocol/go-utcp"
	"github.com/w-h-a/grounded/marketdata"
)

type utcpClientKey struct{}

func WithUtcpClient(client utcp.UtcpClientInterface) marketdata.Option {
	return func(o *marketdata.Options) {
		o.Context = context.WithValue(o.Context, utcpClientKey{}, client)
	}
}

func UtcpClientFrom(ctx context.Context) (utcp.UtcpClientInterface, bool) {
	client, ok := ctx.Value(utcpClientKey{}).(utcp.UtcpClientInterface)
	return client, ok
}

type addrsKey struct{}

// WithProviderAddrs registers HTTP tool providers to discover endpoints from.
func WithProviderAddrs(addrs ...string) marketdata.Option {
	return func(o *marketdata.Options) {
		o.Context = context.WithValue(o.Context, addrsKey{}, addrs)
	}
}

func ProviderAddrsFrom(ctx context.Context) ([]string, bool) {
	addrs, ok := ctx.Value(addrsKey{}).([]string)
	return addrs, ok
}
