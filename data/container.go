// Package data provides the in-memory herb and formula catalog. Readers load
// an immutable snapshot through atomic values, so a reload swaps the whole
// catalog without blocking requests.
package data

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/giygas/herbolaria-api/herbs/entities"
	"github.com/giygas/herbolaria-api/interfaces"
	"github.com/giygas/herbolaria-api/logging"
	"github.com/giygas/herbolaria-api/safety"
)

// Compile-time check to ensure DataContainer implements CatalogStore
var _ interfaces.CatalogStore = (*DataContainer)(nil)

// catalog is one loaded generation of the data. It is never mutated after
// being stored.
type catalog struct {
	herbs        []entities.Herb
	formulas     []entities.Formula
	herbsByID    map[int]entities.Herb
	herbsByName  map[string]entities.Herb // folded name
	formulasByID map[int]entities.Formula
	herbKeys     []string   // folded name per herb, same order as herbs
	formulaKeys  [][]string // folded name and alt names per formula
}

// DataContainer holds the catalog with atomic values for zero-downtime updates
type DataContainer struct {
	catalog         atomic.Value // *catalog
	lastUpdated     atomic.Value // time.Time
	updating        atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// NewDataContainer creates a new DataContainer with an empty catalog
func NewDataContainer() *DataContainer {
	dc := &DataContainer{}
	dc.catalog.Store(buildCatalog(nil, nil))
	dc.lastUpdated.Store(time.Time{})
	dc.serverStartTime.Store(time.Time{})
	return dc
}

func buildCatalog(herbs []entities.Herb, formulas []entities.Formula) *catalog {
	if herbs == nil {
		herbs = make([]entities.Herb, 0)
	}
	if formulas == nil {
		formulas = make([]entities.Formula, 0)
	}

	c := &catalog{
		herbs:        herbs,
		formulas:     formulas,
		herbsByID:    make(map[int]entities.Herb, len(herbs)),
		herbsByName:  make(map[string]entities.Herb, len(herbs)),
		formulasByID: make(map[int]entities.Formula, len(formulas)),
		herbKeys:     make([]string, len(herbs)),
		formulaKeys:  make([][]string, len(formulas)),
	}

	// On duplicates the first entry wins, the quality report flags the rest
	for i, h := range herbs {
		key := safety.NameKey(h.Name)
		c.herbKeys[i] = key
		if _, exists := c.herbsByID[h.ID]; !exists {
			c.herbsByID[h.ID] = h
		}
		if _, exists := c.herbsByName[key]; !exists && key != "" {
			c.herbsByName[key] = h
		}
	}

	for i, f := range formulas {
		keys := make([]string, 0, 1+len(f.AltNames))
		keys = append(keys, safety.Fold(f.Name))
		for _, alt := range f.AltNames {
			keys = append(keys, safety.Fold(alt))
		}
		c.formulaKeys[i] = keys
		if _, exists := c.formulasByID[f.ID]; !exists {
			c.formulasByID[f.ID] = f
		}
	}

	return c
}

func (dc *DataContainer) current() *catalog {
	if v := dc.catalog.Load(); v != nil {
		if c, ok := v.(*catalog); ok {
			return c
		}
	}

	logging.Warn("Catalog is empty or invalid")
	return buildCatalog(nil, nil)
}

// GetHerbs returns all herbs in catalog order
func (dc *DataContainer) GetHerbs() []entities.Herb {
	return dc.current().herbs
}

// GetFormulas returns all formulas in catalog order
func (dc *DataContainer) GetFormulas() []entities.Formula {
	return dc.current().formulas
}

// HerbByID looks up a herb by its catalog id
func (dc *DataContainer) HerbByID(id int) (entities.Herb, bool) {
	h, ok := dc.current().herbsByID[id]
	return h, ok
}

// HerbByName looks up a herb by name, ignoring case and accents
func (dc *DataContainer) HerbByName(name string) (entities.Herb, bool) {
	h, ok := dc.current().herbsByName[safety.NameKey(name)]
	return h, ok
}

// FormulaByID looks up a formula by its catalog id
func (dc *DataContainer) FormulaByID(id int) (entities.Formula, bool) {
	f, ok := dc.current().formulasByID[id]
	return f, ok
}

// SearchHerbs returns herbs whose name contains query, ignoring case and
// accents. An empty query returns every herb.
func (dc *DataContainer) SearchHerbs(query string) []entities.Herb {
	c := dc.current()
	q := safety.Fold(strings.TrimSpace(query))
	if q == "" {
		return c.herbs
	}

	results := make([]entities.Herb, 0)
	for i, key := range c.herbKeys {
		if strings.Contains(key, q) {
			results = append(results, c.herbs[i])
		}
	}
	return results
}

// SearchFormulas returns formulas whose name or an alternative name contains
// query. An empty query returns every formula.
func (dc *DataContainer) SearchFormulas(query string) []entities.Formula {
	c := dc.current()
	q := safety.Fold(strings.TrimSpace(query))
	if q == "" {
		return c.formulas
	}

	results := make([]entities.Formula, 0)
	for i, keys := range c.formulaKeys {
		for _, key := range keys {
			if strings.Contains(key, q) {
				results = append(results, c.formulas[i])
				break
			}
		}
	}
	return results
}

// GetLastUpdated returns the timestamp of the last catalog load
func (dc *DataContainer) GetLastUpdated() time.Time {
	if v := dc.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating returns true if a catalog reload is in progress
func (dc *DataContainer) IsUpdating() bool {
	return dc.updating.Load()
}

// SetServerStartTime sets the server start time
func (dc *DataContainer) SetServerStartTime(startTime time.Time) {
	dc.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (dc *DataContainer) GetServerStartTime() time.Time {
	if v := dc.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}
	return time.Time{}
}

// UpdateData builds the lookup indexes and swaps the catalog atomically
func (dc *DataContainer) UpdateData(herbs []entities.Herb, formulas []entities.Formula) {
	dc.catalog.Store(buildCatalog(herbs, formulas))
	dc.lastUpdated.Store(time.Now())
}

// BeginUpdate marks the start of a reload.
// Returns false if another reload is in progress.
func (dc *DataContainer) BeginUpdate() bool {
	return dc.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a reload
func (dc *DataContainer) EndUpdate() {
	dc.updating.Store(false)
}
