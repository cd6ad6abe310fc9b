// Command flowstudio runs, validates and inspects flow graphs.
//
//	flowstudio run --flow flows/support.yaml --input "I need a refund"
//	flowstudio run --flow 42 --flows ./flows --output json
//	flowstudio validate
//	flowstudio list
//	flowstudio audit 3f1c...
//
// Settings come from flags, FLOWSTUDIO_* environment variables and an
// optional .env file, in that order of precedence. The engine config file
// given by --config may also be overridden through the environment, for
// example FLOWSTUDIO_AUDIT_DSN.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "flowstudio:", err)
		os.Exit(1)
	}
}
