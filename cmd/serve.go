package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/theapemachine/mnemo/pkg/errors"
	"github.com/theapemachine/mnemo/pkg/service"
)

var (
	addrFlag string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the memory service",
		Long:  longServe,
		RunE: func(cmd *cobra.Command, args []string) error {
			system, err := buildComponents()

			if err != nil {
				return err
			}

			if err := system.manager.Initialize(cmd.Context()); err != nil {
				return err
			}

			addr := addrFlag

			if addr == "" {
				addr = viper.GetString("server.addr")
			}

			server := service.NewMemoryServer(
				system.manager, system.detector, system.metrics,
			)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

			errs := make(chan error, 1)

			go func() {
				errs <- server.Run(addr)
			}()

			select {
			case err := <-errs:
				return err
			case <-sig:
				log.Info("shutting down")

				var failures []any

				if err := server.Shutdown(); err != nil {
					failures = append(failures, err)
				}

				if err := system.manager.Close(); err != nil {
					failures = append(failures, err)
				}

				if len(failures) > 0 {
					return errors.NewError(failures...)
				}

				return nil
			}
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&addrFlag, "addr", "a", "", "Address to bind to, overrides server.addr")
}

var longServe = `
Serve the memory API over HTTP.

Examples:
  # Serve on the configured address
  mnemo serve

  # Serve on a specific address
  mnemo serve --addr :8080
`
