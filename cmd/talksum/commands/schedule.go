package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talksum/talksum/pkg/talksum/store"
)

// newScheduleCmd creates the `talksum schedule` command group for
// inspecting persisted jobs from the shell.
func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect scheduled summary jobs",
	}
	cmd.AddCommand(newScheduleListCmd())
	return cmd
}

func newScheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all persisted summary jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)

			st, err := store.Open(cfg.Database.Path, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			jobs, err := st.LoadJobs()
			if err != nil {
				return fmt.Errorf("load jobs: %w", err)
			}
			if len(jobs) == 0 {
				fmt.Println("No summary jobs scheduled.")
				return nil
			}

			for i, job := range jobs {
				lastRun := "never"
				if job.LastRunAt != nil {
					lastRun = job.LastRunAt.Format("2006-01-02 15:04:05")
				}
				fmt.Printf("%d. %s  room=%q  fires_at=%s %s  runs=%d  last_run=%s\n",
					i+1, job.ID, job.RoomName, job.FireAt(), job.Recurrence(), job.RunCount, lastRun)
				if job.LastError != "" {
					fmt.Printf("   last_error: %s\n", job.LastError)
				}
			}
			return nil
		},
	}
}
