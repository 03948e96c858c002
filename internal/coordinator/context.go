package coordinator

import "context"

type clientKey struct{}

// Client identifies the caller behind a mutation for the security checks.
type Client struct {
	UserAgent string
	IPAddress string
}

func WithClient(ctx context.Context, client Client) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

func clientFrom(ctx context.Context) Client {
	if client, ok := ctx.Value(clientKey{}).(Client); ok {
		return client
	}
	return Client{}
}
