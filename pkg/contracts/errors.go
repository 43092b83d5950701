package contracts

import "fmt"

// ValidationError reports a malformed contract definition. It is fatal at
// registration and never silently accepted.
type ValidationError struct {
	ContractID string
	Field      string
	Expression string
	Reason     string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Expression != "":
		return fmt.Sprintf("contract %s: invalid expression %q: %s", e.ContractID, e.Expression, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("contract %s: %s %s", e.ContractID, e.Field, e.Reason)
	default:
		return fmt.Sprintf("contract %s: %s", e.ContractID, e.Reason)
	}
}

// NotFoundError reports an unknown contract id at execution time.
// Fatal to that call only.
type NotFoundError struct {
	ContractID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("contract %s not registered", e.ContractID)
}
