package normalize

import "fmt"

// RowRejected describes a table row dropped during normalization.
// The run continues; rejections are logged and counted.
type RowRejected struct {
	Line   int    // 1-based source line, 0 when unknown
	Entity string // Entity label if it could be read
	Column string // Offending column
	Value  string // Raw cell
	Reason string
}

func (e *RowRejected) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("row rejected at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("row rejected at line %d (%s): %s", e.Line, e.Entity, e.Reason)
}
