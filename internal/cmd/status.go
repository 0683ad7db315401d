package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/transcriber/config"
	"github.com/bnema/transcriber/internal/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Print a job as JSON from the configured store",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if cfg.Store.Backend == config.BackendMemory {
		return errors.New("status needs a persistent store.backend (sqlite, jsonfile or redis)")
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	job, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("job %s not found", args[0])
		}
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}
