package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newPermissionCmd groups commands over the durable permissions table
// described in spec.md §4.H.
func newPermissionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permission",
		Short: "List, grant, or revoke tool permissions",
	}
	cmd.AddCommand(newPermissionListCmd(), newPermissionGrantCmd(), newPermissionRevokeCmd())
	return cmd
}

func newPermissionListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List permissions, optionally filtered to one user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.ListPermissions(userID)
			if err != nil {
				return fmt.Errorf("list permissions: %w", err)
			}
			if len(rows) == 0 {
				fmt.Println("no permissions recorded")
				return nil
			}
			for _, p := range rows {
				fmt.Printf("%-36s user=%-20s %s/%s resource=%-20s %s\n", p.PermissionID, p.UserID, p.Subject, p.Action, p.Resource, p.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "restrict to one userId")
	return cmd
}

func newPermissionGrantCmd() *cobra.Command {
	var resource string
	cmd := &cobra.Command{
		Use:   "grant <userId> <subject> <action>",
		Short: "Grant (or re-activate) a permission",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.GrantPermission(args[0], args[1], args[2], resource); err != nil {
				return fmt.Errorf("grant permission: %w", err)
			}
			fmt.Printf("granted %s/%s to %s\n", args[1], args[2], args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&resource, "resource", "", "resource scope, if any")
	return cmd
}

func newPermissionRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <permissionId>",
		Short: "Revoke a permission by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.RevokePermission(args[0]); err != nil {
				return fmt.Errorf("revoke permission: %w", err)
			}
			fmt.Printf("revoked %s\n", args[0])
			return nil
		},
	}
}
