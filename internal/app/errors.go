package app

import "net/http"

// DomainError is a rejection the API surfaces verbatim: the HTTP status,
// a stable machine code, and a human message. Anything else that escapes
// the service layer maps to a generic 500.
type DomainError struct {
	Status  int    // HTTP status to answer with
	Code    string // stable machine-readable code
	Message string // safe to show in the editor UI
	Details any    // optional structured context, encoded as-is
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message, Details: details}
}

// Constructors for rejections raised from more than one place. One-off
// rejections build domainError directly at the call site.

func errModuleNotFound(moduleID string) *DomainError {
	return domainError(http.StatusNotFound, "MODULE_NOT_FOUND", "Module not found", map[string]any{"moduleId": moduleID})
}

func errDraftNotFound(moduleID string) *DomainError {
	return domainError(http.StatusNotFound, "DRAFT_NOT_FOUND", "No open draft session for this module", map[string]any{"moduleId": moduleID})
}

func errSaveInProgress(sessionID string) *DomainError {
	return domainError(http.StatusConflict, "SAVE_IN_PROGRESS", "A save for this draft session is already running", map[string]any{"sessionId": sessionID})
}

func errLockViolation(message string, details any) *DomainError {
	return domainError(http.StatusConflict, "LOCK_VIOLATION", message, details)
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}
