package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/rpcpool/picblocks-go/internal/perrors"
)

var gitCommitSHA = ""

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-interrupt:
			fmt.Println()
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}

		signal.Stop(interrupt)
	}()

	app := &cli.App{
		Name:        "picblocks",
		Version:     gitCommitSHA,
		Description: "Position-independent code-block hashing, indexing, and attribution for malware binaries.",
		Flags:       NewKlogFlagSet(),
		Commands: []*cli.Command{
			newCmd_Hash(),
			newCmd_Index(),
			newCmd_Match(),
			newCmd_Corpus(),
			newCmd_Serve(),
			newCmd_Version(),
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Errorf("picblocks: %v", err)
		os.Exit(perrors.KindOf(err).ExitCode())
	}
}
