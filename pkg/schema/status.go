package schema

// ExecutionStatus is the lifecycle status shared by workflow executions,
// step executions, and agent executions.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// ValidStatus reports whether s is a member of the closed status set.
func ValidStatus(s ExecutionStatus) bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ToolType enumerates the kinds of tools a step can be bound to.
type ToolType string

const (
	ToolTypeAPI        ToolType = "api"
	ToolTypeDatabase   ToolType = "database"
	ToolTypeFileSystem ToolType = "file_system"
	ToolTypeCustom     ToolType = "custom"
)

// ValidToolType reports whether t is a member of the closed tool type set.
func ValidToolType(t ToolType) bool {
	switch t {
	case ToolTypeAPI, ToolTypeDatabase, ToolTypeFileSystem, ToolTypeCustom:
		return true
	}
	return false
}
