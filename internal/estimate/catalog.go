package estimate

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultClass = "other"

// Catalog maps symbols onto coarse classes (majors, alts, ...) used as an
// estimation feature. Symbols absent from the file fall into DefaultClass.
type Catalog struct {
	classes map[string]string
}

type catalogFile struct {
	Classes map[string][]string `yaml:"classes"`
}

// LoadCatalog reads a symbols.yaml of the form:
//
//	classes:
//	  major: [BTCUSDT, ETHUSDT]
//	  alt:   [SOLUSDT, ...]
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading symbol catalog failed: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing symbol catalog failed: %w", err)
	}
	cat := &Catalog{classes: make(map[string]string)}
	for class, symbols := range file.Classes {
		class = strings.ToLower(strings.TrimSpace(class))
		for _, sym := range symbols {
			sym = strings.ToUpper(strings.TrimSpace(sym))
			if sym != "" {
				cat.classes[sym] = class
			}
		}
	}
	return cat, nil
}

// EmptyCatalog returns a catalog classifying everything as DefaultClass.
func EmptyCatalog() *Catalog {
	return &Catalog{classes: make(map[string]string)}
}

// Classify returns the class for symbol, or DefaultClass.
func (c *Catalog) Classify(symbol string) string {
	if c == nil {
		return DefaultClass
	}
	if class, ok := c.classes[strings.ToUpper(strings.TrimSpace(symbol))]; ok {
		return class
	}
	return DefaultClass
}
