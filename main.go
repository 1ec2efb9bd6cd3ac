// Command secure-ec2 launches EC2 instances that only the caller can reach:
// through a security group open to the caller's public IP, or through
// Session Manager with no inbound access at all.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/avishayil/secure-ec2/internal/commands"
)

// Set with -ldflags at release build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	commands.SetVersionInfo(version, commit, date)
	err := commands.Root().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, commands.RenderError(err))
		os.Exit(1)
	}
}
