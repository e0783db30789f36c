package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilnhq/agentcore/internal/agentmgr"
	"github.com/kilnhq/agentcore/internal/store"
)

func registerAgentCommands(root *cobra.Command) {
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agent sessions",
	}
	root.AddCommand(agentCmd)

	agentCmd.AddCommand(agentCreateCmd())
	agentCmd.AddCommand(agentListCmd())
	agentCmd.AddCommand(agentStartCmd())
	agentCmd.AddCommand(agentStopCmd())
	agentCmd.AddCommand(agentStatusCmd())
	agentCmd.AddCommand(agentMessagesCmd())
	agentCmd.AddCommand(agentMessageCmd())
	agentCmd.AddCommand(agentProgressCmd())
	agentCmd.AddCommand(agentDeleteCmd())
	agentCmd.AddCommand(agentAcceptCmd())
	agentCmd.AddCommand(agentRejectCmd())
	agentCmd.AddCommand(agentConflictsCmd())
}

func agentCreateCmd() *cobra.Command {
	var name, description, projectPath, projectName, workspaceRoot, initialPrompt string
	c := &cobra.Command{
		Use:   "create",
		Short: "Create a new agent session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := current.mgr.CreateAgent(cmd.Context(), agentmgr.CreateAgentParams{
				Name:          name,
				Description:   description,
				ProjectPath:   projectPath,
				ProjectName:   projectName,
				WorkspaceRoot: workspaceRoot,
				InitialPrompt: initialPrompt,
			})
			if err != nil {
				return err
			}
			fmt.Printf("created agent %s (status=%s)\n", sess.ID, sess.Status)
			return nil
		},
	}
	c.Flags().StringVar(&name, "name", "", "agent name")
	c.Flags().StringVar(&description, "description", "", "agent description")
	c.Flags().StringVar(&projectPath, "project", "", "project root path (required)")
	c.Flags().StringVar(&projectName, "project-name", "", "human-readable project name")
	c.Flags().StringVar(&workspaceRoot, "workspace", "", "workspace root, defaults to project path")
	c.Flags().StringVar(&initialPrompt, "prompt", "", "initial user message, if any")
	_ = c.MarkFlagRequired("project")
	return c
}

func agentListCmd() *cobra.Command {
	var projectPath, status string
	c := &cobra.Command{
		Use:   "list",
		Short: "List agent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := current.mgr.ListAgents(cmd.Context(), projectPath, store.SessionStatus(status))
			if err != nil {
				return err
			}
			for _, s := range summaries {
				fmt.Printf("%s\t%s\t%s\t%d/%d steps\n", s.ID, s.Name, s.Status, s.Progress.CompletedSteps, s.Progress.TotalSteps)
			}
			return nil
		},
	}
	c.Flags().StringVar(&projectPath, "project", "", "filter by project path")
	c.Flags().StringVar(&status, "status", "", "filter by status")
	return c
}

func agentStartCmd() *cobra.Command {
	var maxSteps int
	c := &cobra.Command{
		Use:   "start <id>",
		Short: "Start (or resume) execution of an agent session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// StartAgent blocks for the full run: it transitions the
			// session to doing and then drives it through the Execution
			// Engine to its next terminal status.
			started, err := current.mgr.StartAgent(cmd.Context(), args[0], agentmgr.StartAgentParams{MaxSteps: maxSteps})
			if err != nil {
				return err
			}
			if started {
				sess, err := current.mgr.GetAgent(cmd.Context(), args[0])
				if err == nil && sess != nil {
					fmt.Printf("agent %s finished run, status=%s\n", args[0], sess.Status)
				}
			}
			return nil
		},
	}
	c.Flags().IntVar(&maxSteps, "max-steps", 0, "override the configured per-run step cap")
	return c
}

func agentStopCmd() *cobra.Command {
	var reason string
	c := &cobra.Command{
		Use:   "stop <id>",
		Short: "Abort a running agent session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			current.mgr.StopAgent(args[0], reason)
			fmt.Printf("agent %s aborted\n", args[0])
			return nil
		},
	}
	c.Flags().StringVar(&reason, "reason", "stopped by operator", "reason recorded on the session")
	return c
}

func agentStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show an agent session's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := current.mgr.GetAgent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if sess == nil {
				return fmt.Errorf("no agent with id %s", args[0])
			}
			fmt.Printf("%s\nstatus: %s\nproject: %s\nupdated: %s\n", sess.ID, sess.Status, sess.ProjectPath, sess.UpdatedAt)
			return nil
		},
	}
}

func agentMessagesCmd() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "messages <id>",
		Short: "List an agent session's conversation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := current.mgr.GetMessages(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.Role, m.Content)
			}
			return nil
		},
	}
	c.Flags().IntVar(&limit, "limit", 0, "limit to the most recent N messages (0 = all)")
	return c
}

func agentMessageCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "message <id> <text>",
		Short: "Append a user message to an agent session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := current.mgr.AddMessage(cmd.Context(), args[0], store.RoleUser, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("added message %s\n", msg.ID)
			return nil
		},
	}
	return c
}

func agentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an agent session, aborting it first if running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.mgr.DeleteAgent(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted agent %s\n", args[0])
			return nil
		},
	}
}

func agentAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <id>",
		Short: "Accept a reviewed session's changes, committing its snapshot journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.mgr.UpdateAgentStatus(cmd.Context(), args[0], store.StatusAccepted); err != nil {
				return err
			}
			fmt.Printf("agent %s accepted\n", args[0])
			return nil
		},
	}
}

func agentRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a reviewed session's changes, reverting its snapshot journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.mgr.UpdateAgentStatus(cmd.Context(), args[0], store.StatusRejected); err != nil {
				return err
			}
			fmt.Printf("agent %s rejected, changes reverted\n", args[0])
			return nil
		},
	}
}

func agentConflictsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "conflicts <id> <path>...",
		Short: "Preflight a set of paths for lock conflicts with other sessions",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := current.mgr.CheckFileConflicts(cmd.Context(), current.locks, args[0], args[1:])
			if err != nil {
				return err
			}
			if report.CanProceed {
				fmt.Println("no conflicts")
				return nil
			}
			for _, p := range report.Conflicts {
				fmt.Printf("conflict: %s\n", p)
			}
			for _, s := range report.Suggestions {
				fmt.Printf("suggestion: %s\n", s)
			}
			return nil
		},
	}
	return c
}

func agentProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <id>",
		Short: "Show an agent session's step-by-step audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := current.mgr.GetProgress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("[%s] %s: %s %s\n", e.Timestamp.Format("15:04:05"), e.Step, e.Status, e.Details)
			}
			return nil
		},
	}
}
