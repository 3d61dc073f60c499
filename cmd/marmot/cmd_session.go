package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/marmot/internal/state"
)

func init() {
	rootCmd.AddCommand(conversationCmd)
	conversationCmd.AddCommand(conversationListCmd, conversationClearCmd)
}

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
}

var conversationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		list, err := state.NewConversations(db).List(context.Background())
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPLATFORM\tUSER\tUPDATED")
		for _, c := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				c.ID, c.Platform, c.UserID,
				c.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var conversationClearCmd = &cobra.Command{
	Use:   "clear <platform> <user-id>",
	Short: "Clear a user's conversation history",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		if err := state.NewConversations(db).Clear(context.Background(), args[0], args[1]); err != nil {
			return fmt.Errorf("clear conversation: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Conversation for %s:%s cleared.\n", args[0], args[1])
		return nil
	},
}
