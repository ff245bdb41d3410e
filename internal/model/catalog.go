package model

// Category groups products; substitutes are searched among products that
// share at least one category with the initial product.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Store is a shop selling a product. Names are free-form and deduplicated.
type Store struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
