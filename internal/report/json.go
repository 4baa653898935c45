package report

import (
	"encoding/json"
	"os"

	"github.com/secluso/release-tools/internal/compare"
)

func WriteJSON(path string, r compare.Report) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}
