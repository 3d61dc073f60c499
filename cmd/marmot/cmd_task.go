package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/marmot/internal/state"
	"github.com/user/marmot/internal/types"
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskListCmd, taskShowCmd, taskCancelCmd)
}

func openDB() (*sql.DB, error) {
	cfg := loadConfig()
	return state.Open(filepath.Join(cfg.DataDir, "marmot.db"))
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect scheduled tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all active scheduled tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		tasks, err := state.NewTasks(db).ListAllActive(context.Background())
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No active scheduled tasks.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSER\tTYPE\tTRIGGER\tNEXT RUN\tDESCRIPTION")
		for _, t := range tasks {
			nextRun := "-"
			if t.NextRunAt != nil {
				nextRun = t.NextRunAt.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.ID, t.UserID, t.TriggerType, t.TriggerValue, nextRun, t.Description)
		}
		return w.Flush()
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		task, err := state.NewTasks(db).GetByID(context.Background(), types.TaskID(args[0]))
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}
		fmt.Fprintf(os.Stdout, "ID:          %s\n", task.ID)
		fmt.Fprintf(os.Stdout, "User:        %s (%s)\n", task.UserID, task.Platform)
		fmt.Fprintf(os.Stdout, "Status:      %s\n", task.Status)
		fmt.Fprintf(os.Stdout, "Trigger:     %s %s\n", task.TriggerType, task.TriggerValue)
		fmt.Fprintf(os.Stdout, "Description: %s\n", task.Description)
		fmt.Fprintf(os.Stdout, "Prompt:      %s\n", task.Prompt)
		return nil
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		// A running daemon re-checks status at fire time, so updating the
		// record here is enough.
		store := state.NewTasks(db)
		id := types.TaskID(args[0])
		if _, err := store.GetByID(context.Background(), id); err != nil {
			return fmt.Errorf("get task: %w", err)
		}
		if err := store.SetStatus(context.Background(), id, types.TaskCancelled); err != nil {
			return fmt.Errorf("cancel task: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Task %s cancelled.\n", args[0])
		return nil
	},
}
