package herbs

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/giygas/herbolaria-api/herbs/entities"
	"github.com/giygas/herbolaria-api/logging"
)

const herbColumns = 6

// parseHerbs reads herbs.tsv:
// id, name, nature, flavor, contraindications, cautions.
// Multi-valued fields are separated by '|'. Lines starting with '#' and a
// header line whose first column is "id" are ignored.
func parseHerbs(content []byte) ([]entities.Herb, error) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	herbs := make([]entities.Herb, 0)
	lineCount := 0
	skippedEmptyLines := 0
	skippedMissingColumns := 0
	skippedFormatErrors := 0

	for scanner.Scan() {
		lineCount++
		line := strings.TrimRight(scanner.Text(), "\r")

		if strings.TrimSpace(line) == "" {
			skippedEmptyLines++
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")

		if lineCount == 1 && strings.EqualFold(strings.TrimSpace(fields[0]), "id") {
			continue
		}

		// Trailing empty columns are often dropped by editors
		if len(fields) < 2 {
			skippedMissingColumns++
			continue
		}
		for len(fields) < herbColumns {
			fields = append(fields, "")
		}

		id, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil || id <= 0 {
			skippedFormatErrors++
			continue
		}

		name := strings.TrimSpace(fields[1])
		if name == "" {
			skippedFormatErrors++
			continue
		}

		herbs = append(herbs, entities.Herb{
			ID:                id,
			Name:              name,
			Nature:            strings.TrimSpace(fields[2]),
			Flavor:            strings.TrimSpace(fields[3]),
			Contraindications: splitList(fields[4]),
			Cautions:          splitList(fields[5]),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error in herbs.tsv: %w", err)
	}

	if skippedEmptyLines > 0 || skippedMissingColumns > 0 || skippedFormatErrors > 0 {
		logging.Info("herbs.tsv skip statistics",
			"empty_lines", skippedEmptyLines,
			"missing_columns", skippedMissingColumns,
			"format_errors", skippedFormatErrors,
			"total_lines", lineCount,
			"records_parsed", len(herbs))
	}

	return herbs, nil
}

func splitList(field string) entities.Text {
	if strings.TrimSpace(field) == "" {
		return nil
	}
	return entities.NewText(strings.Split(field, "|")...)
}
