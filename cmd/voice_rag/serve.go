package main

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"

	"voice_rag/internal/server"
)

func serveCMD() *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			a, err := openApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a, a.Registry())
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(cfg.HTTPAddr) }()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
				log.Println("Shutting down server")
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")

	return serve
}
