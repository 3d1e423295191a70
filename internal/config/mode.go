package config

// Mode selects how task work reaches the base branch.
type Mode string

const (
	// ModeDirect commits land directly on the working branch. Branch and
	// worktree commands refuse to run.
	ModeDirect Mode = "direct"

	// ModeBranchPR routes every task through its own branch, worktree, and
	// PR artifact set; the base branch only takes integrations.
	ModeBranchPR Mode = "branch_pr"
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// IsValid returns true if the mode is a recognized value.
func (m Mode) IsValid() bool {
	switch m {
	case ModeDirect, ModeBranchPR:
		return true
	default:
		return false
	}
}

// IsDirect returns true in direct mode.
func (m Mode) IsDirect() bool {
	return m == ModeDirect
}

// IsBranchPR returns true in branch_pr mode.
func (m Mode) IsBranchPR() bool {
	return m == ModeBranchPR
}

// StatusCommitPolicy gates status- and comment-driven commits.
type StatusCommitPolicy string

const (
	// PolicyAllow performs status commits without ceremony.
	PolicyAllow StatusCommitPolicy = "allow"
	// PolicyWarn performs them but prints a warning unless acknowledged.
	PolicyWarn StatusCommitPolicy = "warn"
	// PolicyConfirm refuses them without explicit acknowledgement.
	PolicyConfirm StatusCommitPolicy = "confirm"
)

// IsValid returns true if the policy is a recognized value.
func (p StatusCommitPolicy) IsValid() bool {
	switch p {
	case PolicyAllow, PolicyWarn, PolicyConfirm:
		return true
	default:
		return false
	}
}
