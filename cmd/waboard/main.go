package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ofertalabs/waboard/config"
	"github.com/ofertalabs/waboard/internal/app"
	"github.com/ofertalabs/waboard/internal/webapi"
	"github.com/ofertalabs/waboard/internal/webserver"
)

var (
	h        = flag.Bool("h", false, "help usage")
	showVer  = flag.Bool("v", false, "show version")
	conffile = flag.String("c", "", "config file")
	initdb   = flag.Bool("initdb", false, "drop and recreate tables, all data is lost")
)

var version = "dev"

func printHelp() {
	if *h {
		ustr := fmt.Sprintf("waboard version: %s, usage: waboard -h\nOptions:", version)
		fmt.Fprintf(os.Stderr, "%s\n", ustr)
		flag.PrintDefaults()
		os.Exit(0)
	}
}

func main() {
	flag.Parse()
	printHelp()

	if *showVer {
		fmt.Println(version)
		os.Exit(0)
	}

	cfg := config.LoadConfig(*conffile)
	cfg.InitDirs()

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The hub connection is best effort at startup; open views poll until the
	// resume job brings it up.
	if err := application.ConnectHub(ctx); err != nil {
		zap.L().Warn("hub connect failed at startup, continuing with polling", zap.Error(err))
	}

	ws := webserver.Init(application)
	webapi.Register()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(ws.Listen)

	g.Go(func() error {
		<-ctx.Done()
		zap.L().Info("shutting down")
		return ws.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("server exited", zap.Error(err))
	}
}
