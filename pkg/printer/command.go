package printer

import (
	"context"
	"time"

	"github.com/simplepos/shell/pkg/escpos"
	"github.com/simplepos/shell/pkg/ipc"
)

// RawArgs are the print_raw arguments as the UI sends them:
// {"connection": "tcp:10.0.0.9:9100", "data": [27, 64, ...]}.
type RawArgs struct {
	Connection string    `json:"connection"`
	Data       ipc.Bytes `json:"data"`
}

// TestArgs are the print_test arguments.
type TestArgs struct {
	Connection string `json:"connection"`
	Width      int    `json:"width" validate:"nullable,between=16,80"`
}

// RawCommand is the print_raw command. It returns no value on success and
// the job's error message otherwise.
func (p *Printer) RawCommand() ipc.Handler {
	return ipc.Typed(func(ctx context.Context, args RawArgs) (any, error) {
		return nil, p.PrintRaw(ctx, args.Connection, args.Data)
	})
}

// TestCommand is the print_test command: it prints escpos.TestPage.
func (p *Printer) TestCommand() ipc.Handler {
	return ipc.Typed(func(ctx context.Context, args TestArgs) (any, error) {
		page := escpos.TestPage(args.Width, args.Connection, time.Now())
		return map[string]int{"bytes": len(page)}, p.PrintRaw(ctx, args.Connection, page)
	})
}
