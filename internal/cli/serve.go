package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	apperrors "option-analyzer/internal/errors"
	"option-analyzer/internal/server"
	"option-analyzer/internal/stream"
)

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local intake server the page scraper posts chains to",
		Long: `Run the local HTTP API. The browser extension posts scraped chains to
/api/chains/analyze, /api/chains/scraped or /api/chains/ai; every accepted chain is published to
subscribers of /api/stream. Prometheus metrics are served on /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := app.Config.Server
			if cmd.Flags().Changed("host") {
				cfg.Host, _ = cmd.Flags().GetString("host")
			}
			if cmd.Flags().Changed("port") {
				cfg.Port, _ = cmd.Flags().GetInt("port")
			}

			st, err := app.DataStore()
			if err != nil {
				return apperrors.Wrap(err, "opening store")
			}

			var analyst server.Analyst
			if a, err := app.Analyst(); err != nil {
				app.Logger.Warn().Err(err).Str("provider", app.Config.AI.Provider).
					Msg("AI backend unavailable, /api/chains/ai disabled")
			} else {
				analyst = a
			}

			hub := stream.NewHub()
			hub.RegisterConsumer(stream.ConsumerFunc(func(snap stream.Snapshot) {
				app.Logger.Debug().
					Str("symbol", snap.Symbol).
					Int("strikes", len(snap.Report.Strikes)).
					Float64("pcr", snap.Report.Statistics.PCR).
					Msg("Snapshot broadcast")
			}))
			hub.Start(ctx)
			defer hub.Stop()
			// End open event streams before the HTTP shutdown.
			go func() {
				<-ctx.Done()
				hub.Stop()
			}()

			metrics := server.NewMetrics()
			handler := server.NewHandler(server.Deps{
				Engine:   app.Engine,
				Analyst:  analyst,
				Breaker:  app.Breaker,
				Provider: app.Config.AI.Provider,
				Store:    st,
				Hub:      hub,
				Metrics:  metrics,
				Logger:   app.Logger,
			})
			srv := server.NewServer(handler, metrics, app.Logger,
				server.WithHost(cfg.Host),
				server.WithPort(cfg.Port),
				server.WithCORS(cfg.CORS),
			)

			app.Logger.Info().
				Str("addr", srv.Addr()).
				Str("provider", app.Config.AI.Provider).
				Bool("ai", analyst != nil).
				Msg("Starting intake server")

			if err := srv.Run(ctx); err != nil {
				return err
			}
			app.Logger.Info().Msg("Intake server stopped")
			return nil
		},
	}
	cmd.Flags().String("host", "", "listen address (default from config)")
	cmd.Flags().Int("port", 0, "listen port (default from config)")
	return cmd
}
