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

// Is matches any EngineError carrying the same code, so wrapped or
// re-messaged errors still satisfy errors.Is against the sentinels below.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Input errors (-32200 to -32219) ----

var (
	ErrNilDocument      = &EngineError{Code: -32200, Message: "no document supplied"}
	ErrNoSolidBody      = &EngineError{Code: -32201, Message: "document has no solid body"}
	ErrNoCandidate      = &EngineError{Code: -32202, Message: "no candidate geometry for selection"}
	ErrInvalidPart      = &EngineError{Code: -32203, Message: "invalid part description"}
	ErrStaleHandle      = &EngineError{Code: -32204, Message: "geometry handle is stale"}
	ErrUnknownStrategy  = &EngineError{Code: -32205, Message: "unknown conversion strategy"}
	ErrPreflightBlocked = &EngineError{Code: -32206, Message: "part rejected by preflight"}
	ErrNotSheetMetal    = &EngineError{Code: -32207, Message: "part is not classified as sheet metal"}
)

// ---- Analysis errors (-32220 to -32239) ----

var (
	ErrAnalysisUnavailable = &EngineError{Code: -32220, Message: "thickness analysis unavailable"}
	ErrAnalysisFailed      = &EngineError{Code: -32221, Message: "thickness analysis failed"}
	ErrNoBins              = &EngineError{Code: -32222, Message: "thickness analysis returned no usable bins"}
	ErrSectionFailed       = &EngineError{Code: -32223, Message: "section produced no area"}
)

// ---- Conversion errors (-32240 to -32269) ----

var (
	ErrOperationFailed     = &EngineError{Code: -32240, Message: "kernel operation failed"}
	ErrNoSheetMetalFeature = &EngineError{Code: -32241, Message: "no sheet-metal feature after conversion"}
	ErrVolumeDrift         = &EngineError{Code: -32242, Message: "volume not conserved"}
	ErrFlattenFailed       = &EngineError{Code: -32243, Message: "flat pattern could not be activated"}
	ErrThicknessUnresolved = &EngineError{Code: -32244, Message: "sheet thickness could not be resolved"}
	ErrRollbackFailed      = &EngineError{Code: -32245, Message: "rollback failed"}
	ErrStrategiesExhausted = &EngineError{Code: -32246, Message: "all conversion strategies failed"}
	ErrCancelled           = &EngineError{Code: -32247, Message: "conversion cancelled"}
	ErrSaveFailed          = &EngineError{Code: -32248, Message: "document save failed"}
	ErrInvalidFlatState    = &EngineError{Code: -32249, Message: "invalid flat-pattern state transition"}
	ErrInternal            = &EngineError{Code: -32250, Message: "unexpected internal failure"}
)

// ---- Store / Config errors (-32130 to -32159) ----

var (
	ErrStoreInit     = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrStoreQuery    = &EngineError{Code: -32131, Message: "store query failed"}
	ErrStoreWrite    = &EngineError{Code: -32132, Message: "store write failed"}
	ErrConfigInvalid = &EngineError{Code: -32136, Message: "invalid configuration"}
	ErrDuplicateSeq  = &EngineError{Code: -32137, Message: "duplicate attempt sequence number"}
)

// ---- Admission errors (-32160 to -32169) ----

var (
	ErrRateLimitExceeded = &EngineError{Code: -32160, Message: "rate limit exceeded"}
	ErrDocumentBusy      = &EngineError{Code: -32161, Message: "document is already being converted"}
)
