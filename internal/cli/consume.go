package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/thep200/gitee-crawler/internal/crawler"
	"github.com/thep200/gitee-crawler/internal/paginator"
	"github.com/thep200/gitee-crawler/pkg/db"
)

var consumeCategory string

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Store items published to Kafka into MySQL",
	RunE:  consumeAction,
}

func init() {
	consumeCmd.Flags().StringVar(&consumeCategory, "category", "", "category topic to consume: issue, pull_request, repository")
	_ = consumeCmd.MarkFlagRequired("category")
	rootCmd.AddCommand(consumeCmd)
}

func consumeAction(cmd *cobra.Command, _ []string) error {
	category, err := paginator.ParseKind(consumeCategory)
	if err != nil {
		return err
	}
	e, err := setup(true)
	if err != nil {
		return err
	}
	if len(e.config.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is not configured")
	}

	mysql, _ := db.NewMysql(e.config)
	defer mysql.Close()

	ctx := cmd.Context()
	err = crawler.Consume(ctx, e.config, e.logger, mysql, category)
	e.logger.Info(ctx, "Consumer for %s stopped", category)
	return err
}
