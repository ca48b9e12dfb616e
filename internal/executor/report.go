package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spachava753/canary/internal/models"
)

// WriteReport writes the run result to path as indented JSON.
func WriteReport(path string, result *models.RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing run report: %w", err)
	}
	return nil
}
