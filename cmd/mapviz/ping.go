package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/seuros/geoviz/src/backend"
)

func pingCommand(args []string) error {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	daemonFlag := fs.String("daemon", os.Getenv("MAPVIZ_DAEMON"), "Render daemon address (or set MAPVIZ_DAEMON)")
	timeoutFlag := fs.Duration("timeout", 10*time.Second, "Connection timeout")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return &exitError{code: 0}
		}
		return usageErrorf(2, "%v", err)
	}

	if *daemonFlag == "" {
		return usageErrorf(2, "Missing --daemon (or set MAPVIZ_DAEMON)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	remote, err := backend.NewRemote(ctx, &backend.RemoteConfig{Address: *daemonFlag}, "mapviz-ping")
	if err != nil {
		return err
	}
	defer func() { _ = remote.Close() }()

	if err := remote.WaitReady(ctx); err != nil {
		return err
	}

	fmt.Println("OK")
	return nil
}
