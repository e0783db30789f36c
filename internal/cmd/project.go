package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func registerProjectCommands(root *cobra.Command) {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects across agent sessions",
	}
	root.AddCommand(projectCmd)

	projectCmd.AddCommand(projectListCmd())
	projectCmd.AddCommand(projectSummaryCmd())
	projectCmd.AddCommand(projectSwitchCmd())
	projectCmd.AddCommand(projectCleanupCmd())
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every project with at least one agent session",
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := current.mgr.GetAllProjects(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range projects {
				fmt.Printf("%s\t%s\tagents=%d\trunning=%d\tlast=%s\n",
					p.ProjectPath, p.ProjectName, p.AgentCount, p.RunningAgents, p.LastActivity.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func projectSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <path>",
		Short: "Show per-status agent counts for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := current.mgr.GetProjectAgentSummary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("total=%d running=%d\n", summary.Total, summary.Running)
			for status, count := range summary.ByStatus {
				fmt.Printf("  %s: %d\n", status, count)
			}
			for _, s := range summary.RecentActivity {
				fmt.Printf("  recent: %s (%s)\n", s.ID, s.Status)
			}
			return nil
		},
	}
}

func projectSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <path>",
		Short: "List agents still running in a project before switching away from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			running, err := current.mgr.SwitchProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(running) == 0 {
				fmt.Println("no agents are running in this project")
				return nil
			}
			fmt.Println("the following agents are still running and will not be paused:")
			for _, s := range running {
				fmt.Printf("  %s (%s)\n", s.ID, s.Name)
			}
			return nil
		},
	}
}

func projectCleanupCmd() *cobra.Command {
	var days int
	c := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sessions belonging to projects inactive longer than the given window",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := current.mgr.CleanupInactiveProjects(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d inactive sessions\n", n)
			return nil
		},
	}
	c.Flags().IntVar(&days, "days", 30, "inactivity window in days")
	return c
}
