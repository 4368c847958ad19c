package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func errNoUsableRows() *DomainError {
	return domainError(http.StatusUnprocessableEntity, "NO_USABLE_ROWS", "no rows with a heading name found in the upload", nil)
}

func errNoValidRows() *DomainError {
	return domainError(http.StatusUnprocessableEntity, "NO_VALID_ROWS", "no valid rows found in the snapshot upload", nil)
}

func errHeadingOwnership(missing []int64) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "HEADING_OWNERSHIP", "referenced headings do not belong to the account", map[string]any{"headingIds": missing})
}

func errRangeExhausted(day string) *DomainError {
	return domainError(http.StatusConflict, "RANGE_EXHAUSTED", "the PDM id range for "+day+" is exhausted; retry tomorrow", nil)
}

func errNotFound(entity string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", entity+" not found", nil)
}

func errIdentifierConflict() *DomainError {
	return domainError(http.StatusConflict, "IDENTIFIER_CONFLICT", "identifier allocation conflicted with a concurrent write; retry", nil)
}

func errUnsupportedEventType(eventType string) *DomainError {
	return domainError(http.StatusInternalServerError, "UNSUPPORTED_EVENT_TYPE", "unsupported status event type "+eventType, nil)
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}
