package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/compozy/vachanamrut/engine/infra/server"
	"github.com/compozy/vachanamrut/pkg/config"
	"github.com/spf13/cobra"
)

func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the question answering HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			srv, err := server.NewServer(ctx, config.FromContext(ctx))
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().String("host", "", "Host interface for the server to bind to")
	cmd.Flags().Int("port", 0, "Port for the server to listen on")
	cmd.Flags().Bool("cors", false, "Enable CORS")
	return cmd
}
