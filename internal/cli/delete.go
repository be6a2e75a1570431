package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Remove a document and all its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	deleted, err := a.Hub.DeleteDocument(ctx, args[0])
	if err != nil {
		return err
	}
	if !deleted {
		cmd.Printf("No document with id %s\n", args[0])
		return nil
	}
	cmd.Printf("Deleted %s\n", args[0])
	return nil
}
