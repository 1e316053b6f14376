package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/thep200/gitee-crawler/internal/backend"
	"github.com/thep200/gitee-crawler/internal/checkpoint"
	"github.com/thep200/gitee-crawler/internal/paginator"
	"github.com/thep200/gitee-crawler/pkg/db"
	"gopkg.in/yaml.v3"
)

var (
	checkpointOrigin   string
	checkpointCategory string
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or reset stored checkpoints",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print stored checkpoints as YAML",
	RunE:  checkpointShowAction,
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete a checkpoint so the next fetch starts over",
	RunE:  checkpointResetAction,
}

func init() {
	checkpointShowCmd.Flags().StringVar(&checkpointOrigin, "origin", "", "only this origin")
	checkpointResetCmd.Flags().StringVar(&checkpointOrigin, "origin", "", "origin (default from fetch.owner/fetch.repository)")
	checkpointResetCmd.Flags().StringVar(&checkpointCategory, "category", "", "category to reset")
	_ = checkpointResetCmd.MarkFlagRequired("category")

	checkpointCmd.AddCommand(checkpointShowCmd, checkpointResetCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func openStore(cmd *cobra.Command) (checkpoint.Store, *env, func(), error) {
	e, err := setup(false)
	if err != nil {
		return nil, nil, nil, err
	}
	mysql, _ := db.NewMysql(e.config)
	store, err := checkpoint.Open(cmd.Context(), e.config, e.logger, mysql)
	if err != nil {
		mysql.Close()
		return nil, nil, nil, err
	}
	return store, e, func() {
		store.Close()
		mysql.Close()
	}, nil
}

func checkpointShowAction(cmd *cobra.Command, _ []string) error {
	store, _, closeFn, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	records, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	shown := make([]checkpoint.Record, 0, len(records))
	for _, rec := range records {
		if checkpointOrigin == "" || rec.Origin == checkpointOrigin {
			shown = append(shown, rec)
		}
	}
	if len(shown) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No checkpoints stored.")
		return nil
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(map[string][]checkpoint.Record{"checkpoints": shown})
}

func checkpointResetAction(cmd *cobra.Command, _ []string) error {
	category, err := paginator.ParseKind(checkpointCategory)
	if err != nil {
		return err
	}
	store, e, closeFn, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	origin := checkpointOrigin
	if origin == "" {
		if e.config.Fetch.Owner == "" || e.config.Fetch.Repository == "" {
			return fmt.Errorf("--origin is required when fetch.owner/fetch.repository are not set")
		}
		origin = backend.Origin(e.config.GiteeApi.SiteUrl, e.config.Fetch.Owner, e.config.Fetch.Repository)
	}
	if err := store.Delete(cmd.Context(), origin, category); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint of %s %s reset\n", origin, category)
	return nil
}
