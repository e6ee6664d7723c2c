package history

import (
	"fmt"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/atomicfile"
)

// writeState replaces the file at path with st.
func writeState(path string, st *state) error {
	if err := atomicfile.WriteJSON(path, st); err != nil {
		return fmt.Errorf("history: write state: %w", err)
	}
	return nil
}
