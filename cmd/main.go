package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"

	"github.com/MimeLyc/jobrelay/internal/cli"
	"github.com/MimeLyc/jobrelay/internal/dedup"
	"github.com/MimeLyc/jobrelay/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	if dedup.IsFatal(err) {
		log.Error("CRITICAL: %v", err)
		for _, hint := range errors.GetAllHints(err) {
			log.Error("CRITICAL: %s", hint)
		}
	} else {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	_ = log.GetLogger().Sync()
	os.Exit(cli.GetExitCode(err))
}
