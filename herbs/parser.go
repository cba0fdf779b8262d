// Package herbs loads the herb and formula catalog from CATALOG_DIR.
package herbs

import (
	"fmt"
	"sync"

	"github.com/giygas/herbolaria-api/herbs/entities"
	"github.com/giygas/herbolaria-api/interfaces"
	"github.com/giygas/herbolaria-api/logging"
)

const (
	HerbsFile    = "herbs.tsv"
	FormulasFile = "formulas.json"
	// RulesFile is optional
	RulesFile = "rules.json"
)

// Compile-time check to ensure CatalogParser implements interfaces.CatalogParser
var _ interfaces.CatalogParser = (*CatalogParser)(nil)

// CatalogParser reads the catalog files from a directory
type CatalogParser struct {
	dir string
}

// NewCatalogParser creates a parser reading from dir
func NewCatalogParser(dir string) *CatalogParser {
	return &CatalogParser{dir: dir}
}

// ParseCatalog reads herbs.tsv and formulas.json concurrently
func (p *CatalogParser) ParseCatalog() ([]entities.Herb, []entities.Formula, error) {
	var (
		wg          sync.WaitGroup
		herbs       []entities.Herb
		formulas    []entities.Formula
		herbsErr    error
		formulasErr error
	)

	wg.Add(2)

	go func() {
		defer wg.Done()
		content, err := readCatalogFile(p.dir, HerbsFile)
		if err != nil {
			herbsErr = err
			return
		}
		herbs, herbsErr = parseHerbs(content)
	}()

	go func() {
		defer wg.Done()
		content, err := readCatalogFile(p.dir, FormulasFile)
		if err != nil {
			formulasErr = err
			return
		}
		formulas, formulasErr = parseFormulas(content)
	}()

	wg.Wait()

	if herbsErr != nil {
		return nil, nil, fmt.Errorf("failed to parse herbs: %w", herbsErr)
	}
	if formulasErr != nil {
		return nil, nil, fmt.Errorf("failed to parse formulas: %w", formulasErr)
	}

	logging.Info("Catalog parsing completed", "herbs", len(herbs), "formulas", len(formulas), "dir", p.dir)
	return herbs, formulas, nil
}
