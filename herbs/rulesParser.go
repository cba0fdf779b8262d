package herbs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/giygas/herbolaria-api/interfaces"
	"github.com/giygas/herbolaria-api/logging"
	"github.com/giygas/herbolaria-api/safety"
)

// Compile-time check to ensure CatalogParser implements interfaces.RulesParser
var _ interfaces.RulesParser = (*CatalogParser)(nil)

// ParseRules reads the optional rules.json holding clinic specific safety
// rules. A missing file yields an empty table.
func (p *CatalogParser) ParseRules() (safety.RuleTable, error) {
	content, err := readCatalogFile(p.dir, RulesFile)
	if errors.Is(err, fs.ErrNotExist) {
		logging.Debug("No custom safety rules", "dir", p.dir)
		return safety.RuleTable{}, nil
	}
	if err != nil {
		return safety.RuleTable{}, err
	}
	return parseRules(content)
}

// parseRules decodes a rule table. Keys and markers are trimmed, then the
// table is validated as a whole.
func parseRules(content []byte) (safety.RuleTable, error) {
	var table safety.RuleTable
	if err := json.Unmarshal(content, &table); err != nil {
		return safety.RuleTable{}, fmt.Errorf("failed to decode %s: %w", RulesFile, err)
	}

	table.Version = strings.TrimSpace(table.Version)
	for i := range table.Rules {
		r := &table.Rules[i]
		r.Key = strings.TrimSpace(r.Key)
		r.Contraindication = strings.TrimSpace(r.Contraindication)
		r.Caution = strings.TrimSpace(r.Caution)
	}

	if err := table.Validate(); err != nil {
		return safety.RuleTable{}, fmt.Errorf("%s: %w", RulesFile, err)
	}
	return table, nil
}
