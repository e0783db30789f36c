package agentmgr

import (
	"time"

	"github.com/kilnhq/agentcore/internal/store"
)

// CreateAgentParams is the input to Manager.CreateAgent.
type CreateAgentParams struct {
	Name          string
	Description   string
	ProjectPath   string
	ProjectName   string
	WorkspaceRoot string
	InitialPrompt string
}

// StartAgentParams is the input to Manager.StartAgent. The
// AutoRetry/RetryAttempts fields are accepted but unimplemented: the
// surface is preserved for a future execution policy, but no retry logic
// is wired to it.
type StartAgentParams struct {
	MaxSteps      int
	AutoRetry     bool
	RetryAttempts int
}

// Progress summarizes a session's ProgressEntry log for SessionSummary.
type Progress struct {
	CurrentStep    string
	TotalSteps     int
	CompletedSteps int
}

// SessionSummary is the listing projection of a Session, adding derived
// progress counters.
type SessionSummary struct {
	*store.Session
	Progress Progress
}

// ProjectAgentSummary is returned by GetProjectAgentSummary.
type ProjectAgentSummary struct {
	Total          int
	ByStatus       map[store.SessionStatus]int
	Running        int
	RecentActivity []*store.Session
}

// ProjectListing is one entry of GetAllProjects.
type ProjectListing struct {
	ProjectPath   string
	ProjectName   string
	AgentCount    int
	LastActivity  time.Time
	RunningAgents int
}

// ConflictReport is returned by CheckFileConflicts.
type ConflictReport struct {
	Conflicts   []string
	CanProceed  bool
	Suggestions []string
}
