package mcp

import (
	"context"
	"io"

	"github.com/w-h-a/grounded/server"
)

type streamsKey struct{}

type streams struct {
	in  io.Reader
	out io.Writer
}

// WithStreams replaces stdin and stdout as the transport.
func WithStreams(in io.Reader, out io.Writer) server.Option {
	return func(o *server.Options) {
		o.Context = context.WithValue(o.Context, streamsKey{}, streams{in: in, out: out})
	}
}

func StreamsFrom(ctx context.Context) (io.Reader, io.Writer, bool) {
	s, ok := ctx.Value(streamsKey{}).(streams)
	return s.in, s.out, ok
}
