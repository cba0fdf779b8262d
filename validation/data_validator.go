// Package validation checks user input and reports catalog data quality.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/giygas/herbolaria-api/composition"
	"github.com/giygas/herbolaria-api/herbs/entities"
	"github.com/giygas/herbolaria-api/interfaces"
	"github.com/giygas/herbolaria-api/logging"
	"github.com/giygas/herbolaria-api/safety"
)

const (
	// MaxQuantity is the largest mass in grams accepted for one item
	MaxQuantity = 10000.0
	// MaxConditions bounds the number of condition keys per request
	MaxConditions = 10
	// percentageTolerance is how far raw percentages may drift from 100
	// before a formula is reported as silently rescaled
	percentageTolerance = 1.0
	maxReportedIDs      = 20
)

// Pre-compiled patterns, reused for all validations
var (
	// Letters of any script (herb names also come in pinyin and hanzi),
	// digits, spaces and safe punctuation
	inputRegex = regexp.MustCompile(`^[\p{L}\p{M}\p{N}\s\-\.\+']+$`)

	conditionKeyRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-]{0,39}$`)

	// Substring checks are cheaper than regexes for these
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"eval(", "expression(", "url(", "@import",
		// SQL injection
		"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
		"--", "/*", "*/", "exec(",
		// Command injection
		"; ", "| ", "& ", "`", "$(", "${",
		// Path traversal
		"../", "..\\", "%2e%2e", "file://",
	}
)

// Compile-time check to ensure DataValidatorImpl implements DataValidator
var _ interfaces.DataValidator = (*DataValidatorImpl)(nil)

// DataValidatorImpl implements the interfaces.DataValidator interface
type DataValidatorImpl struct{}

// NewDataValidator creates a new data validator
func NewDataValidator() interfaces.DataValidator {
	return &DataValidatorImpl{}
}

// ValidateInput validates free-text input such as search queries and patient
// names
func (v *DataValidatorImpl) ValidateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("input cannot be empty")
	}

	if len([]rune(input)) < 2 {
		return fmt.Errorf("input too short: minimum 2 characters")
	}

	if len(input) > 80 {
		return fmt.Errorf("input too long: maximum 80 characters")
	}

	if len(strings.Fields(input)) > 6 {
		return fmt.Errorf("search query too complex: maximum 6 words allowed")
	}

	lowerInput := strings.ToLower(input)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowerInput, pattern) {
			return fmt.Errorf("input contains potentially dangerous content")
		}
	}

	if !inputRegex.MatchString(input) {
		return fmt.Errorf("input contains invalid characters. Only letters, numbers, spaces, hyphens, apostrophes, periods and plus sign are allowed")
	}

	if v.hasExcessiveRepetition(input) {
		return fmt.Errorf("input contains excessive character repetition")
	}

	return nil
}

// ValidateID parses a positive catalog id
func (v *DataValidatorImpl) ValidateID(input string) (int, error) {
	n, err := parseDigits(input, 9)
	if err != nil {
		return -1, err
	}
	if n <= 0 {
		return -1, fmt.Errorf("id must be a positive number")
	}
	return n, nil
}

// ValidateIndex parses a zero-based item index
func (v *DataValidatorImpl) ValidateIndex(input string) (int, error) {
	return parseDigits(input, 4)
}

// parseDigits accepts only ASCII digits, no sign and no surrounding spaces
func parseDigits(input string, maxDigits int) (int, error) {
	if input == "" {
		return -1, fmt.Errorf("input cannot be empty")
	}
	if len(input) > maxDigits {
		return -1, fmt.Errorf("input too long: maximum %d digits", maxDigits)
	}
	for _, r := range input {
		if r < '0' || r > '9' {
			return -1, fmt.Errorf("input contains invalid characters. Only numeric characters are allowed")
		}
	}
	n, err := strconv.Atoi(input)
	if err != nil {
		return -1, fmt.Errorf("invalid number: %w", err)
	}
	return n, nil
}

// ValidateQuantity checks a mass in grams. The lower bound is enforced by
// the composition operations, this only rejects values that are not numbers
// or are absurdly large.
func (v *DataValidatorImpl) ValidateQuantity(quantity float64) error {
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) {
		return fmt.Errorf("%w: quantity must be a finite number", composition.ErrInvalidQuantity)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", composition.ErrInvalidQuantity)
	}
	if quantity > MaxQuantity {
		return fmt.Errorf("%w: quantity exceeds %.0f g", composition.ErrInvalidQuantity, MaxQuantity)
	}
	return nil
}

// ValidateConditions trims, checks and de-duplicates condition keys,
// keeping their first-seen order. Keys without a rule are accepted: a
// rules.json loaded later may define them, and until then the evaluator
// ignores them.
func (v *DataValidatorImpl) ValidateConditions(keys []string) ([]string, error) {
	cleaned := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if !conditionKeyRegex.MatchString(key) {
			return nil, fmt.Errorf("invalid condition key %q", key)
		}
		if !slices.Contains(cleaned, key) {
			cleaned = append(cleaned, key)
		}
	}

	if len(cleaned) > MaxConditions {
		return nil, fmt.Errorf("too many conditions: maximum %d allowed", MaxConditions)
	}
	return cleaned, nil
}

// ReportCatalogQuality collects data quality issues of a catalog load. It
// never rejects the catalog: every issue found here is tolerated by the
// composition engine.
func (v *DataValidatorImpl) ReportCatalogQuality(
	herbs []entities.Herb,
	formulas []entities.Formula,
) *interfaces.CatalogQualityReport {
	report := &interfaces.CatalogQualityReport{
		DuplicateHerbIDs:    []int{},
		DuplicateFormulaIDs: []int{},
		EmptyFormulas:       []int{},
		RescaledFormulas:    []int{},
	}

	// Check 1: duplicate herb ids and herbs without a name
	herbIDs := make(map[int]bool, len(herbs))
	herbNames := make(map[string]bool, len(herbs))
	for _, h := range herbs {
		if herbIDs[h.ID] {
			report.DuplicateHerbIDs = append(report.DuplicateHerbIDs, h.ID)
		}
		herbIDs[h.ID] = true

		name := safety.NameKey(h.Name)
		if name == "" {
			report.HerbsWithoutName++
			continue
		}
		herbNames[name] = true
	}

	// Check 2: duplicate formula ids
	formulaIDs := make(map[int]bool, len(formulas))
	for _, f := range formulas {
		if formulaIDs[f.ID] {
			report.DuplicateFormulaIDs = append(report.DuplicateFormulaIDs, f.ID)
		}
		formulaIDs[f.ID] = true
	}

	for _, f := range formulas {
		// Check 3: formulas without shares cannot be prescribed
		if len(f.Shares) == 0 {
			if len(report.EmptyFormulas) < maxReportedIDs {
				report.EmptyFormulas = append(report.EmptyFormulas, f.ID)
			}
			continue
		}

		// Check 4: shares whose herb is unknown, matched the way the data
		// container resolves names, and shares with no dose
		for _, s := range f.Shares {
			known := (s.HerbID != 0 && herbIDs[s.HerbID]) ||
				herbNames[safety.NameKey(s.Name)]
			if !known {
				report.UnresolvedReferences++
			}
			if s.Percentage == nil && s.Grams == nil {
				report.SharesWithoutDose++
			}
		}

		// Check 5: raw percentages that will be rescaled to 100
		total := 0.0
		for _, p := range composition.RawPercentages(f.Shares, f.ReferenceTotal()) {
			total += p
		}
		if math.Abs(total-100) > percentageTolerance && len(report.RescaledFormulas) < maxReportedIDs {
			report.RescaledFormulas = append(report.RescaledFormulas, f.ID)
		}
	}

	if len(report.DuplicateHerbIDs) > 0 || len(report.DuplicateFormulaIDs) > 0 {
		logging.Error("Duplicate catalog ids detected",
			"herb_ids", report.DuplicateHerbIDs,
			"formula_ids", report.DuplicateFormulaIDs,
		)
	}

	return report
}

// hasExcessiveRepetition checks for the same character repeated more than
// 10 times in a row
func (v *DataValidatorImpl) hasExcessiveRepetition(input string) bool {
	for i := 0; i < len(input)-10; i++ {
		allSame := true
		for j := 1; j <= 10; j++ {
			if input[i] != input[i+j] {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}
	return false
}
