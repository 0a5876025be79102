package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var readOutput string

var readCmd = &cobra.Command{
	Use:   "read [hash]",
	Short: "Print stored content by content id",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

var unpinCmd = &cobra.Command{
	Use:   "unpin [hash]",
	Short: "Release content on the store and every replica",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnpin,
}

var pinsCmd = &cobra.Command{
	Use:   "pins",
	Short: "List content retained by the store and each replica",
	Args:  cobra.NoArgs,
	RunE:  runPins,
}

func init() {
	readCmd.Flags().StringVarP(&readOutput, "output", "o", "", "write content to a file")
	rootCmd.AddCommand(readCmd, unpinCmd, pinsCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	if mahutaService == nil {
		return errServiceNotConfigured
	}

	data, err := mahutaService.Read(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if readOutput != "" {
		if err := os.WriteFile(readOutput, data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", readOutput, err)
		}
		cmd.Printf("Wrote %d bytes to %s\n", len(data), readOutput)
		return nil
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runUnpin(cmd *cobra.Command, args []string) error {
	if mahutaService == nil {
		return errServiceNotConfigured
	}

	if err := mahutaService.Unpin(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to unpin: %w", err)
	}
	cmd.Printf("Unpinned %s\n", args[0])
	return nil
}

func runPins(cmd *cobra.Command, _ []string) error {
	if mahutaService == nil {
		return errServiceNotConfigured
	}

	for _, status := range mahutaService.Pins(context.Background()) {
		if status.Err != nil {
			cmd.Printf("%s: error: %v\n", status.Replica, status.Err)
			continue
		}
		cmd.Printf("%s (%d)\n", status.Replica, len(status.CIDs))
		for _, cid := range status.CIDs {
			cmd.Printf("  %s\n", cid)
		}
	}
	return nil
}
