package booking

import "fmt"

// FlowError is the typed error for the negotiation flow. Two FlowErrors
// compare equal under errors.Is when their codes match, so wrapped
// sentinels stay matchable.
type FlowError struct {
	Code    string
	Message string
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any FlowError carrying the same code.
func (e *FlowError) Is(target error) bool {
	t, ok := target.(*FlowError)
	return ok && t.Code == e.Code
}

// Sentinels for every outcome the session has to branch on.
var (
	// Recoverable by re-prompting the user.
	ErrAmbiguousTime = &FlowError{Code: "ambiguous_time_expression", Message: "time expression could not be understood"}

	// Recoverable by retrying the refresh with backoff.
	ErrAvailabilitySource = &FlowError{Code: "availability_source_unavailable", Message: "could not load calendar availability"}

	// Terminal: the search window holds no free slot.
	ErrNoAvailability = &FlowError{Code: "no_availability", Message: "no free slots in the search window"}

	// Recoverable by refreshing and re-resolving.
	ErrWriteConflict = &FlowError{Code: "calendar_write_conflict", Message: "slot was taken before the event could be written"}

	// Terminal once the writer's retry budget is spent.
	ErrCalendarUnavailable = &FlowError{Code: "calendar_unavailable", Message: "calendar provider is unavailable"}

	// Terminal after repeated invalid disambiguation replies.
	ErrSessionAbandoned = &FlowError{Code: "session_abandoned", Message: "too many invalid replies in a row"}
)
