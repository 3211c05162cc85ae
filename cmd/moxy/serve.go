package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmoxy/moxy/pkg/engine"
	"github.com/getmoxy/moxy/pkg/intercept"
	"github.com/getmoxy/moxy/pkg/logging"
	"github.com/getmoxy/moxy/pkg/rules"
	"github.com/getmoxy/moxy/pkg/state"
)

var serveFlags struct {
	listen       string
	rulesPath    string
	upstream     string
	pollInterval time.Duration
	noWatch      bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the interception server",
	Long: `Start the interception server with a rule document.

With --upstream, unmatched and forwarded traffic goes to a single origin
(reverse-proxy mode). Without it, moxy acts as a forward proxy and targets
each request's own host.

Examples:
  # Reverse-proxy an API and mock parts of it
  moxy serve --rules mock.json --upstream https://api.example.com

  # Forward proxy on a custom port
  moxy serve --rules mock.json --listen :3128`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listen, "listen", "l", ":8080", "listen address")
	serveCmd.Flags().StringVarP(&serveFlags.rulesPath, "rules", "r", "mock.json", "rule document path")
	serveCmd.Flags().StringVarP(&serveFlags.upstream, "upstream", "u", "", "upstream origin URL (reverse-proxy mode)")
	serveCmd.Flags().DurationVar(&serveFlags.pollInterval, "poll-interval", rules.DefaultPollInterval, "rule document reload poll interval")
	serveCmd.Flags().BoolVar(&serveFlags.noWatch, "no-watch", false, "disable rule document reloading")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(logLevel),
		Format: logging.ParseFormat(logFormat),
		Output: os.Stderr,
	})

	rs, err := rules.Load(serveFlags.rulesPath)
	if err != nil {
		return err
	}
	for _, warning := range rs.Warnings {
		log.Warn("configuration warning", "path", serveFlags.rulesPath, "warning", warning)
	}

	var upstream *url.URL
	if serveFlags.upstream != "" {
		upstream, err = url.Parse(serveFlags.upstream)
		if err != nil {
			return fmt.Errorf("invalid upstream URL: %w", err)
		}
		if upstream.Scheme == "" || upstream.Host == "" {
			return fmt.Errorf("upstream URL %q needs a scheme and host", serveFlags.upstream)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := engine.New(rs, state.NewStore(), log)
	ic := intercept.New(eng, intercept.Options{
		Upstream: upstream,
		// A matched terminate action shuts the server down gracefully.
		OnTerminate: stop,
		Logger:      log,
	})
	srv := intercept.NewServer(serveFlags.listen, ic, log)

	if !serveFlags.noWatch {
		watcher := rules.NewWatcher(serveFlags.rulesPath, serveFlags.pollInterval, eng.Swap, log)
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("configuration watcher stopped", "error", err)
			}
		}()
	}

	log.Info("starting moxy",
		"rules", serveFlags.rulesPath,
		"listen", serveFlags.listen,
		"upstream", serveFlags.upstream,
		"version", Version)
	return srv.ListenAndServe(ctx)
}
