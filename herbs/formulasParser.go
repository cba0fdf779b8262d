package herbs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/giygas/herbolaria-api/herbs/entities"
	"github.com/giygas/herbolaria-api/logging"
)

// parseFormulas reads formulas.json, an array of formulas. Entries without an
// id or a name are dropped; shares are kept exactly as authored, they are
// normalized when a formula is used.
func parseFormulas(content []byte) ([]entities.Formula, error) {
	var raw []entities.Formula
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode formulas.json: %w", err)
	}

	formulas := make([]entities.Formula, 0, len(raw))
	skipped := 0

	for _, f := range raw {
		f.Name = strings.TrimSpace(f.Name)
		if f.ID <= 0 || f.Name == "" {
			skipped++
			continue
		}
		for i := range f.Shares {
			f.Shares[i].Name = strings.TrimSpace(f.Shares[i].Name)
		}
		formulas = append(formulas, f)
	}

	if skipped > 0 {
		logging.Info("formulas.json skip statistics",
			"invalid_entries", skipped,
			"records_parsed", len(formulas))
	}

	return formulas, nil
}
