package diag

import "fmt"

// Code identifies a diagnostic condition reported to clients.
type Code int

const (
	CodeUnknown Code = iota
	CodeResourceLimitReached
	CodeSessionClosed
	CodeSessionNotFound
	CodeSessionAmbiguous
	CodeSessionAlreadyTerminated
	CodeSessionVariableNotDeclared
	CodeSessionVariableInvalidValue
	CodeServiceUnavailable
	CodeOperationCancelled
	CodeIOError
	CodeIllegalState
)

var codeNames = map[Code]string{
	CodeUnknown:                     "UNKNOWN",
	CodeResourceLimitReached:        "RESOURCE_LIMIT_REACHED",
	CodeSessionClosed:               "SESSION_CLOSED",
	CodeSessionNotFound:             "SESSION_NOT_FOUND",
	CodeSessionAmbiguous:            "SESSION_AMBIGUOUS",
	CodeSessionAlreadyTerminated:    "SESSION_ALREADY_TERMINATED",
	CodeSessionVariableNotDeclared:  "SESSION_VARIABLE_NOT_DECLARED",
	CodeSessionVariableInvalidValue: "SESSION_VARIABLE_INVALID_VALUE",
	CodeServiceUnavailable:          "SERVICE_UNAVAILABLE",
	CodeOperationCancelled:          "OPERATION_CANCELLED",
	CodeIOError:                     "IO_ERROR",
	CodeIllegalState:                "ILLEGAL_STATE",
}

// String returns the wire name of the code.
func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// Record carries a diagnostic code and a human readable message.
type Record struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// NewRecord creates a record for the given code and message.
func NewRecord(code Code, message string) Record {
	return Record{Code: code, Message: message}
}

// Error makes Record usable as an error value.
func (r Record) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// MarshalJSON encodes the code by its wire name.
func (c Code) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON decodes a code from its wire name.
func (c *Code) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	for code, name := range codeNames {
		if name == s {
			*c = code
			return nil
		}
	}
	*c = CodeUnknown
	return nil
}
