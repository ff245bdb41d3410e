package openfoodfacts

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sakif/pur-beurre/internal/model"
)

// soldInFrance matches the "countries" field of products sold in France.
var soldInFrance = regexp.MustCompile(`(.*)[Ff]rance(.*)`)

// SearchResult is the part of a search.pl JSON response the importer reads.
type SearchResult struct {
	Count    json.Number  `json:"count"`
	Products []RawProduct `json:"products"`
}

// Total returns Count as an int; a missing or malformed count is 0.
func (r SearchResult) Total() int {
	n, err := r.Count.Int64()
	if err != nil {
		return 0
	}
	return int(n)
}

// RawProduct is one product as returned by Open Food Facts. Pointer fields
// distinguish a missing key from an empty value.
type RawProduct struct {
	Code            *string        `json:"code"`
	ProductName     *string        `json:"product_name"`
	NutriscoreGrade *string        `json:"nutriscore_grade"`
	NutriscoreScore *json.Number   `json:"nutriscore_score"`
	Countries       *string        `json:"countries"`
	Stores          *string        `json:"stores"`
	URL             *string        `json:"url"`
	ImageURL        *string        `json:"image_url"`
	Nutriments      map[string]any `json:"nutriments"`
}

// SoldInFrance reports whether the product lists France among its countries.
func (p RawProduct) SoldInFrance() bool {
	return p.Countries != nil && soldInFrance.MatchString(*p.Countries)
}

// ToProduct converts the record into a model.Product. ok is false when the
// product must be skipped: not sold in France, or missing its code or
// Nutri-Score.
func (p RawProduct) ToProduct() (prod model.Product, ok bool) {
	if !p.SoldInFrance() || p.Code == nil || *p.Code == "" ||
		p.NutriscoreGrade == nil || p.NutriscoreScore == nil {
		return model.Product{}, false
	}

	score, err := parseScore(*p.NutriscoreScore)
	if err != nil {
		return model.Product{}, false
	}

	prod = model.Product{
		Code:            *p.Code,
		Name:            valueOr(p.ProductName, model.UnnamedProduct),
		NutriscoreGrade: *p.NutriscoreGrade,
		NutriscoreScore: score,
		URL:             valueOr(p.URL, ""),
		ImageURL:        valueOr(p.ImageURL, ""),
	}
	prod.Fat = p.nutrient("fat")
	prod.SaturatedFat = p.nutrient("saturated-fat")
	prod.Sugars = p.nutrient("sugars")
	prod.Salt = p.nutrient("salt")
	return prod, true
}

// StoreNames splits the comma separated "stores" field. Blank names are
// dropped.
func (p RawProduct) StoreNames() []string {
	if p.Stores == nil {
		return nil
	}
	var names []string
	for _, s := range strings.Split(*p.Stores, ",") {
		if s = strings.TrimSpace(s); s != "" {
			names = append(names, s)
		}
	}
	return names
}

// nutrient formats "<value><unit>" for the named nutriment, e.g. "30.9g".
// The unit is the larger of the given unit and "g" in string order, so an
// empty or "%" unit becomes "g" while "mg" is kept. Missing data gives
// model.UnknownNutrient.
func (p RawProduct) nutrient(name string) string {
	value, okValue := p.Nutriments[name+"_value"]
	unitRaw, okUnit := p.Nutriments[name+"_unit"]
	if !okValue || !okUnit || value == nil {
		return model.UnknownNutrient
	}
	unit, isString := unitRaw.(string)
	if !isString {
		return model.UnknownNutrient
	}
	return formatValue(value) + max(unit, "g")
}

func formatValue(v any) string {
	switch v := v.(type) {
	case json.Number:
		return v.String()
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// parseScore accepts integer and float encodings ("12", "12.0").
func parseScore(n json.Number) (int, error) {
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("openfoodfacts: invalid nutriscore_score %q: %w", n, err)
	}
	return int(f), nil
}

func valueOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
