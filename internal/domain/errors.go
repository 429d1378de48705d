package domain

import "fmt"

// EngineError is the unified error type for the engine.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Workflow / FSM errors (-32010 to -32039) ----

var (
	ErrInvalidTransition = &EngineError{Code: -32010, Message: "invalid phase transition"}
	ErrRunNotFound       = &EngineError{Code: -32011, Message: "run not found"}
	ErrRunAlreadyDone    = &EngineError{Code: -32012, Message: "run already completed"}
	ErrOptimisticLock    = &EngineError{Code: -32013, Message: "optimistic lock conflict: run was modified concurrently"}
	ErrInvalidPhase      = &EngineError{Code: -32014, Message: "invalid phase value"}
	ErrSummaryNotReady   = &EngineError{Code: -32015, Message: "run has no terminal summary yet"}
	ErrDuplicateRun      = &EngineError{Code: -32016, Message: "run already exists"}
)

// ---- Input / Classifier errors (-32040 to -32069) ----

var (
	ErrProblemEmpty    = &EngineError{Code: -32040, Message: "problem statement is empty"}
	ErrProviderUnknown = &EngineError{Code: -32041, Message: "unknown cloud provider"}
	ErrDomainUnknown   = &EngineError{Code: -32042, Message: "unknown design domain"}
	ErrVocabInvalid    = &EngineError{Code: -32043, Message: "trigger vocabulary validation failed"}
)

// ---- Decomposer errors (-32070 to -32099) ----

var (
	ErrDecomposeCall     = &EngineError{Code: -32070, Message: "decomposition reasoning call failed"}
	ErrDecomposeParse    = &EngineError{Code: -32071, Message: "decomposition response is not parseable"}
	ErrDecomposeCoverage = &EngineError{Code: -32072, Message: "decomposition response is missing requested domains"}
)

// ---- Participant / Fan-out / Guard errors (-32100 to -32129) ----

var (
	ErrParticipantUnknown  = &EngineError{Code: -32100, Message: "participant not registered"}
	ErrParticipantTimeout  = &EngineError{Code: -32101, Message: "participant call exceeded timeout"}
	ErrParticipantResponse = &EngineError{Code: -32102, Message: "participant returned invalid response"}
	ErrDomainOwnership     = &EngineError{Code: -32103, Message: "component domain does not match participant domain"}
	ErrDuplicateRegistered = &EngineError{Code: -32104, Message: "participant already registered"}
	ErrRateLimitExceeded   = &EngineError{Code: -32105, Message: "rate limit exceeded"}
	ErrSpendExceeded       = &EngineError{Code: -32106, Message: "spend budget exceeded"}
)

// ---- Store / Config errors (-32130 to -32159) ----

var (
	ErrStoreInit       = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrStoreQuery      = &EngineError{Code: -32131, Message: "store query failed"}
	ErrStoreWrite      = &EngineError{Code: -32132, Message: "store write failed"}
	ErrSchemaMigration = &EngineError{Code: -32133, Message: "schema migration failed"}
	ErrSnapshotCorrupt = &EngineError{Code: -32134, Message: "snapshot checksum mismatch"}
	ErrConfigInvalid   = &EngineError{Code: -32135, Message: "invalid configuration"}
	ErrDuplicateEvent  = &EngineError{Code: -32136, Message: "duplicate event sequence number"}
)

// ---- Review / Feedback errors (-32160 to -32189) ----

var (
	ErrFeedbackInvalid = &EngineError{Code: -32160, Message: "feedback item validation failed"}
)

// ---- Reasoning / Retrieval errors (-32190 to -32219) ----

var (
	ErrReasoningCall     = &EngineError{Code: -32190, Message: "reasoning call failed"}
	ErrReasoningResponse = &EngineError{Code: -32191, Message: "reasoning response is malformed"}
	ErrRetrievalQuery    = &EngineError{Code: -32192, Message: "retrieval query failed"}
)
