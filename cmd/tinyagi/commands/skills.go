package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyagi/tinyagi/internal/skills"
)

// newSkillsCmd groups commands over the versioned skill drafts described in
// spec.md §4.K.
func newSkillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "List, draft, activate, disable, or roll back skills",
	}
	cmd.AddCommand(
		newSkillsListCmd(),
		newSkillsShowCmd(),
		newSkillsDraftCmd(),
		newSkillsActivateCmd(),
		newSkillsDisableCmd(),
		newSkillsRollbackCmd(),
	)
	return cmd
}

func newSkillsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every skill",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.ListSkills()
			if err != nil {
				return fmt.Errorf("list skills: %w", err)
			}
			if len(rows) == 0 {
				fmt.Println("no skills drafted yet")
				return nil
			}
			for _, sk := range rows {
				fmt.Printf("%-20s v%-3d %-10s %s\n", sk.Name, sk.CurrentVersion, sk.Status, sk.SkillID)
			}
			return nil
		},
	}
}

func newSkillsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <skillId>",
		Short: "Show one skill's current content path and status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			sk, err := s.GetSkill(args[0])
			if err != nil {
				return fmt.Errorf("get skill: %w", err)
			}
			if sk == nil {
				return fmt.Errorf("no such skill: %s", args[0])
			}
			fmt.Printf("skill_id:        %s\n", sk.SkillID)
			fmt.Printf("name:            %s\n", sk.Name)
			fmt.Printf("status:          %s\n", sk.Status)
			fmt.Printf("current_version: %d\n", sk.CurrentVersion)
			fmt.Printf("content_path:    %s\n", sk.ContentPath)
			return nil
		},
	}
}

func newSkillsDraftCmd() *cobra.Command {
	var userID, runID string
	cmd := &cobra.Command{
		Use:   "draft <objective>",
		Short: "Draft (or version) a skill from an objective, deduping by normalized name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			home, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := skills.AutoDraft(s, home.SkillsDir, userID, runID, args[0])
			if err != nil {
				return fmt.Errorf("draft skill: %w", err)
			}
			if result.Created {
				fmt.Printf("created skill %s\n", result.SkillID)
			} else {
				fmt.Printf("added a version to existing skill %s\n", result.SkillID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "requesting userId, for the skill's provenance")
	cmd.Flags().StringVar(&runID, "run", "", "source runId, for the skill's provenance")
	return cmd
}

func newSkillsActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <skillId>",
		Short: "Activate a drafted skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setSkillStatus(args[0], "active")
		},
	}
}

func newSkillsDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <skillId>",
		Short: "Disable an active skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setSkillStatus(args[0], "disabled")
		},
	}
}

func setSkillStatus(skillID, status string) error {
	_, s, err := openHome()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SetSkillStatus(skillID, status); err != nil {
		return fmt.Errorf("set skill status: %w", err)
	}
	fmt.Printf("%s: %s\n", skillID, status)
	return nil
}

func newSkillsRollbackCmd() *cobra.Command {
	var version int
	cmd := &cobra.Command{
		Use:   "rollback <skillId>",
		Short: "Point a skill's current content at an earlier version (default: previous)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			target := version
			if target == 0 {
				sk, err := s.GetSkill(args[0])
				if err != nil {
					return fmt.Errorf("get skill: %w", err)
				}
				if sk == nil {
					return fmt.Errorf("no such skill: %s", args[0])
				}
				target = sk.CurrentVersion - 1
				if target < 1 {
					return fmt.Errorf("skill %s has no earlier version to roll back to", args[0])
				}
			}

			if err := s.RollbackSkill(args[0], target); err != nil {
				return fmt.Errorf("rollback skill: %w", err)
			}
			fmt.Printf("rolled back %s to version %d\n", args[0], target)
			return nil
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "version to roll back to (default: one before current)")
	return cmd
}
