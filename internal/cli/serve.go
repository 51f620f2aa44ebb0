package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-cane-inspector/internal/container"
	"go-cane-inspector/internal/logger"
)

func newServeCommand() *cobra.Command {
	var host, port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local control surface",
		Long: `Serve the inspection workflow as JSON endpoints: select an image, set the
model type and threshold, submit, and read the rendered report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if cfg.LogLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			c, err := container.NewContainer(cfg)
			if err != nil {
				return err
			}

			server := &http.Server{
				Addr:        cfg.ServerAddress(),
				Handler:     c.Handler(),
				ReadTimeout: cfg.RequestTimeout,
				// ?wait=true holds the response until the submission finishes
				WriteTimeout: cfg.RequestTimeout + cfg.SubmitTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.WithFields(logrus.Fields{
					"address":  cfg.ServerAddress(),
					"endpoint": cfg.Endpoint,
					"timeout":  cfg.RequestTimeout,
				}).Info("Starting HTTP server")

				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err, ok := <-errCh:
				if ok {
					logger.WithError(err).Error("Failed to start server")
					return err
				}
				return nil
			case <-quit:
			}

			logger.Info("Shutting down server...")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := server.Shutdown(ctx); err != nil {
				logger.WithError(err).Error("Server forced to shutdown")
				return err
			}

			logger.Info("Server exited")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (default from config)")

	return cmd
}
