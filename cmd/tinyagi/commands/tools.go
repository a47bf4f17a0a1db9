package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newToolsCmd groups commands over the tool-trust registry described in
// spec.md §4.H.
func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List, register, approve, or block tools",
	}
	cmd.AddCommand(newToolsListCmd(), newToolsRegisterCmd(), newToolsApproveCmd(), newToolsBlockCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered tool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.ListTools()
			if err != nil {
				return fmt.Errorf("list tools: %w", err)
			}
			if len(rows) == 0 {
				fmt.Println("no tools registered")
				return nil
			}
			for _, t := range rows {
				fmt.Printf("%-24s source=%-20s trust=%-10s %s\n", t.Name, t.Source, t.TrustClass, t.Status)
			}
			return nil
		},
	}
}

func newToolsRegisterCmd() *cobra.Command {
	var source, trustClass string
	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Register a tool as pending, if not already known",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.RegisterToolIfNew(args[0], source, trustClass); err != nil {
				return fmt.Errorf("register tool: %w", err)
			}
			fmt.Printf("registered %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "where the tool comes from (mcp server, skill, built-in)")
	cmd.Flags().StringVar(&trustClass, "trust-class", "unknown", "trust class assigned at registration")
	return cmd
}

func newToolsApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <name>",
		Short: "Approve a pending tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.ApproveTool(args[0]); err != nil {
				return fmt.Errorf("approve tool: %w", err)
			}
			fmt.Printf("approved %s\n", args[0])
			return nil
		},
	}
}

func newToolsBlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <name>",
		Short: "Block a tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.BlockTool(args[0]); err != nil {
				return fmt.Errorf("block tool: %w", err)
			}
			fmt.Printf("blocked %s\n", args[0])
			return nil
		},
	}
}
