package browser

import "context"

// Driver is the minimal page-control surface the execution loop needs,
// implemented once against a direct CDP attach (cdp_rod.go, go-rod/rod) and
// once against the external automation broker (broker_ws.go, a raw CDP
// WebSocket JSON-RPC client).
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, value string) error
	Fill(ctx context.Context, selector, value string) error
	WaitFor(ctx context.Context, selector string) error
	Press(ctx context.Context, key string) error
	Screenshot(ctx context.Context) ([]byte, error)
	ExtractText(ctx context.Context, selector string) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	VisibleText(ctx context.Context) (string, error)
	Close() error
}
