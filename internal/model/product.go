// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "fmt"

// Nutrient values that Open Food Facts does not provide are stored as this text.
const UnknownNutrient = "donnée inconnue"

// UnnamedProduct is used when the source record has no product name.
const UnnamedProduct = "[Produit sans nom]"

// Product is a food product imported from Open Food Facts.
//
// WHY int64 IDs HERE (and xid strings for users)?
// Product IDs appear in public URLs like /food/42 and /results/42, and they
// are assigned by the database in insertion order. The barcode (Code) is the
// natural key: it is UNIQUE and used for get-or-create during imports.
//
// NUTRI-SCORE:
// NutriscoreScore is the numeric score (lower is healthier, can be negative);
// NutriscoreGrade is the letter a–e derived from it. Substitutes are ranked on
// the score, the grade is only displayed.
type Product struct {
	ID              int64  `json:"id"`
	Code            string `json:"code"`
	Name            string `json:"name"`
	NutriscoreGrade string `json:"nutriscoreGrade"`
	NutriscoreScore int    `json:"nutriscoreScore"`
	Fat             string `json:"fat"`
	SaturatedFat    string `json:"saturatedFat"`
	Sugars          string `json:"sugars"`
	Salt            string `json:"salt"`
	URL             string `json:"url"`
	ImageURL        string `json:"imageUrl"`
}

// Label is the product's display string, used as the autocomplete value in
// the search box. The barcode is embedded so the exact product can be found
// back from the label (see service.ParseLabelCode).
func (p Product) Label() string {
	return fmt.Sprintf("%s [code-barres : %s]", p.Name, p.Code)
}

func (p Product) String() string {
	return p.Label()
}
