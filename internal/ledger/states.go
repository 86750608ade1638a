package ledger

// State names recorded in entries. The ledger owns the vocabulary so that
// replay, simulation and diffing stay meaningful without the live engine.
const (
	// Node lifecycle.
	StatePending   = "PENDING"
	StateScheduled = "SCHEDULED"
	StateExecuting = "EXECUTING"
	StateVerifying = "VERIFYING"
	StateCommitted = "COMMITTED"
	StateFailed    = "FAILED"
	StateRetrying  = "RETRYING"
	StateEscalated = "ESCALATED"
	StateCancelled = "CANCELLED"

	// Rollback walk results per node.
	StateCompensating       = "COMPENSATING"
	StateCompensated        = "COMPENSATED"
	StateUncompensated      = "UNCOMPENSATED"
	StateCompensationFailed = "COMPENSATION_FAILED"

	// Workflow lifecycle (shares the node vocabulary where states overlap).
	StateRunning     = "RUNNING"
	StateHumanReview = "HUMAN_REVIEW"
	StateRolledBack  = "ROLLED_BACK"
)

// Failure and outcome reasons carried on transitions.
const (
	ReasonPolicyDenied         = "PolicyDenied"
	ReasonBudgetExceeded       = "BudgetExceeded"
	ReasonExecutorError        = "ExecutorError"
	ReasonTimeout              = "TimeoutError"
	ReasonVerificationFailed   = "VerificationFailed"
	ReasonCompensationFailure  = "CompensationFailure"
	ReasonCancelled            = "Cancelled"
	ReasonRetriesExhausted     = "RetriesExhausted"
	ReasonPartiallyCompensated = "partially_compensated"
	ReasonLoadShed             = "LoadShed"
)
