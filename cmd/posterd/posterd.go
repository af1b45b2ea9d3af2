package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maptoposter/posterd/internal/gateway"
	"github.com/maptoposter/posterd/internal/log"
	"github.com/maptoposter/posterd/internal/model"
	"github.com/maptoposter/posterd/internal/paths"
	"github.com/maptoposter/posterd/internal/service"
	"github.com/maptoposter/posterd/internal/tool"
)

var (
	flagZoom    int
	flagWidth   int
	flagHeight  int
	flagCountry string
	flagFormat  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the HTTP API until interrupted",
	RunE:  doServe,
}

var generateCmd = &cobra.Command{
	Use:   "generate [location] [style]",
	Short: "run one generation in the foreground",
	Args:  cobra.MaximumNArgs(2),
	RunE:  doGenerate,
}

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "run the readiness check once",
	RunE:  doReady,
}

// posterd holds the components shared by all commands.
type posterd struct {
	resolver   paths.Resolver
	tool       tool.Tool
	dispatcher *service.Dispatcher
	probe      *service.Probe
}

func newPosterd(cfg model.Config) (posterd, error) {
	resolver, err := paths.NewResolver(cfg.Generate.OutputDir)
	if err != nil {
		return posterd{}, err
	}
	t := tool.New(cfg.Tool)
	runner := service.NewRunner()
	return posterd{
		resolver:   resolver,
		tool:       t,
		dispatcher: service.NewDispatcher(runner, t, resolver, cfg.Generate.Timeout),
		probe: service.NewProbe(runner, t, service.ProbeConfig{
			Timeout: cfg.Ready.Timeout,
			City:    cfg.Ready.City,
			Country: cfg.Ready.Country,
		}),
	}, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	attrs := slog.Group("posterd",
		slog.String("cmd", cmd.Name()),
		slog.Int("pid", os.Getpid()),
	)
	return log.ContextAttrs(cmd.Context(), attrs)
}

func doServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPosterd(config)
	if err != nil {
		return err
	}
	if err := p.resolver.Ensure(); err != nil {
		return err
	}
	if err := p.tool.Preflight(); err != nil {
		slog.WarnContext(ctx, "generator preflight failed, /ready will report not ready", "error", err)
	}

	handler := gateway.NewRouter(gateway.NewHandler(gateway.Deps{
		Dispatcher: p.dispatcher,
		Prober:     p.probe,
		PosterDir:  p.resolver.Dir(),
	}))
	srv := gateway.NewServer(config.Server, handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.InfoContext(ctx, "listening", "addr", srv.Addr(), "output_dir", p.resolver.Dir())
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.InfoContext(ctx, "shutting down", "timeout", config.Server.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(
			srv.Shutdown(shutdownCtx),
			p.dispatcher.Close(shutdownCtx),
		)
	})
	return g.Wait()
}

func doGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var req model.PosterRequest
	if len(args) > 0 {
		req.Location = model.Ptr(args[0])
	}
	if len(args) > 1 {
		req.Style = model.Ptr(args[1])
	}
	flags := cmd.Flags()
	if flags.Changed("zoom") {
		req.Zoom = model.Ptr(flagZoom)
	}
	if flags.Changed("width") {
		req.Width = model.Ptr(flagWidth)
	}
	if flags.Changed("height") {
		req.Height = model.Ptr(flagHeight)
	}
	if flags.Changed("country") {
		req.Country = model.Ptr(flagCountry)
	}
	if flags.Changed("format") {
		req.OutputFormat = model.Ptr(flagFormat)
	}

	p, err := newPosterd(config)
	if err != nil {
		return err
	}
	ticket, out, err := p.dispatcher.Generate(ctx, req.Resolve())
	if err != nil {
		return err
	}
	if !out.OK() {
		slog.ErrorContext(ctx, "generation failed", "outcome", out)
		return out.Err
	}
	slog.InfoContext(ctx, "generation done", "outcome", out)
	_, err = fmt.Fprintln(cmd.OutOrStdout(), ticket.OutputPath)
	return err
}

func doReady(cmd *cobra.Command, _ []string) error {
	ctx := cmdContext(cmd)
	p, err := newPosterd(config)
	if err != nil {
		return err
	}
	res := p.probe.Check(ctx)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.Ready {
		return errors.New("not ready: " + res.Detail)
	}
	return nil
}
