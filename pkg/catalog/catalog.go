package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TestType describes one known diagnostic test for UI pickers and display
// normalization. Unknown test types stay allowed on submission; the catalog
// is advisory.
type TestType struct {
	Display       string `yaml:"display" json:"display"`
	Specimen      string `yaml:"specimen" json:"specimen"`
	EquipmentType string `yaml:"equipment_type" json:"equipment_type"`
}

type Catalog struct {
	TestTypes map[string]TestType `yaml:"test_types" json:"test_types"`
}

func Load(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, err
	}
	if len(cat.TestTypes) == 0 {
		return Catalog{}, fmt.Errorf("test-type catalog empty")
	}
	return cat, nil
}

func (c Catalog) Lookup(key string) (TestType, bool) {
	if c.TestTypes == nil {
		return TestType{}, false
	}
	if tt, ok := c.TestTypes[strings.ToLower(key)]; ok {
		return tt, true
	}
	for k, v := range c.TestTypes {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return TestType{}, false
}

// Normalize returns the canonical display name for a known test type, or
// the input unchanged when the type is not in the catalog.
func (c Catalog) Normalize(key string) string {
	if tt, ok := c.Lookup(key); ok && tt.Display != "" {
		return tt.Display
	}
	return key
}

func DefaultCatalog() Catalog {
	return Catalog{TestTypes: map[string]TestType{
		"cbc":            {Display: "Complete Blood Count", Specimen: "blood", EquipmentType: "hematology-analyzer"},
		"blood-glucose":  {Display: "Blood Glucose", Specimen: "blood", EquipmentType: "chemistry-analyzer"},
		"lipid-panel":    {Display: "Lipid Panel", Specimen: "blood", EquipmentType: "chemistry-analyzer"},
		"urinalysis":     {Display: "Urinalysis", Specimen: "urine", EquipmentType: "urine-analyzer"},
		"liver-function": {Display: "Liver Function Panel", Specimen: "blood", EquipmentType: "chemistry-analyzer"},
		"thyroid-panel":  {Display: "Thyroid Panel", Specimen: "blood", EquipmentType: "immunoassay-analyzer"},
		"x-ray":          {Display: "X-Ray Imaging", Specimen: "imaging", EquipmentType: "radiography"},
		"covid-pcr":      {Display: "COVID-19 PCR", Specimen: "swab", EquipmentType: "pcr-thermocycler"},
	}}
}
