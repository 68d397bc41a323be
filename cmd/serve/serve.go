package serve

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/bearwatch/bearwatch/internal/api"
	"github.com/bearwatch/bearwatch/internal/app"
	"github.com/bearwatch/bearwatch/internal/buildinfo"
	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/logger"
)

// Command creates the serve command, which runs the HTTP API until SIGINT or SIGTERM.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the detection API server",
		Long:  "Start the HTTP API accepting trail camera images and serving detection statistics and history.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings, build)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err) // flag names are static
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("host", "", "Interface to bind, empty for all")
	cmd.Flags().Int("port", 8080, "HTTP listen port")
	cmd.Flags().String("datastore", conf.DatastoreSQLite, "Datastore backend: sqlite, mysql or memory")

	bindings := map[string]string{
		"server.host":    "host",
		"server.port":    "port",
		"datastore.type": "datastore",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

func run(parent context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.Global().Module("serve")

	a, err := app.New(ctx, settings, build, app.WithObservers())
	if err != nil {
		return err
	}
	defer a.Close()

	opts := []api.ServerOption{
		api.WithSubmitter(a.Submissions),
		api.WithStatistics(a.Statistics),
		api.WithHistory(a.History),
		api.WithDataStore(a.Store, a.DiskPath()),
		api.WithBuildInfo(build),
		api.WithMetrics(a.Metrics),
	}
	server, err := api.New(settings, opts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", logger.String("cause", context.Cause(gctx).Error()))
		return server.Shutdown(context.WithoutCancel(gctx))
	})

	log.Info("BearWatch started",
		logger.String("version", build.GetVersion()),
		logger.String("instance_id", build.GetInstanceID()))

	return g.Wait()
}
