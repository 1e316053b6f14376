package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/thep200/gitee-crawler/internal/checkpoint"
	"github.com/thep200/gitee-crawler/internal/model"
	"github.com/thep200/gitee-crawler/internal/server"
	"github.com/thep200/gitee-crawler/pkg/db"
)

var (
	servePort    int
	serveNoItems bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored items and checkpoints over HTTP",
	RunE:  serveAction,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveNoItems, "no-items", false, "serve checkpoints only, without a MySQL connection")
	rootCmd.AddCommand(serveCmd)
}

func serveAction(cmd *cobra.Command, _ []string) error {
	e, err := setup(true)
	if err != nil {
		return err
	}
	if servePort > 0 {
		e.config.Server.Port = servePort
	}
	ctx := cmd.Context()

	mysql, _ := db.NewMysql(e.config)
	defer mysql.Close()

	store, err := checkpoint.Open(ctx, e.config, e.logger, mysql)
	if err != nil {
		return err
	}
	defer store.Close()

	var items server.ItemLister
	if !serveNoItems {
		if err := mysql.Ping(ctx); err != nil {
			return err
		}
		items = model.NewItems(mysql)
	}

	srv, err := server.NewServer(e.logger, e.config, store, items)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
