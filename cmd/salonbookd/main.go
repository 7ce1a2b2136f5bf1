package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/salonbook/salonbook/config"
	"github.com/salonbook/salonbook/internal/adminapi"
	"github.com/salonbook/salonbook/internal/app"
	"github.com/salonbook/salonbook/internal/webserver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	cfile   = flag.String("c", "/etc/salonbookd.yml", "config file")
	dev     = flag.Bool("x", false, "debug mode")
	initdb  = flag.Bool("initdb", false, "drop and recreate all tables, then exit")
	showVer = flag.Bool("v", false, "show version")
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("salonbookd %s (built %s)\n", Version, BuildTime)
		return
	}

	cfg := config.LoadConfig(*cfile)
	if *dev {
		cfg.System.Debug = true
		cfg.Database.Debug = true
	}

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	server := webserver.Init(application)
	adminapi.InitRouter()

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx)
	})
	g.Go(func() error {
		application.StartBackgroundJobs(ctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}
