package match

// Match is a single ranked product hit.
type Match struct {
	productID   string
	displayName string
	category    string
	subCategory string
	colour      string
	similarity  float64
}

// New creates a ranked match.
func New(productID, displayName, category, subCategory, colour string, similarity float64) Match {
	return Match{
		productID:   productID,
		displayName: displayName,
		category:    category,
		subCategory: subCategory,
		colour:      colour,
		similarity:  similarity,
	}
}

// FromDistance creates a match whose similarity is 1 - distance.
func FromDistance(productID, displayName, category, subCategory, colour string, distance float64) Match {
	return New(productID, displayName, category, subCategory, colour, 1-distance)
}

// ProductID returns the product identifier.
func (m *Match) ProductID() string { return m.productID }

// DisplayName returns the product display name.
func (m *Match) DisplayName() string { return m.displayName }

// Category returns the master category.
func (m *Match) Category() string { return m.category }

// SubCategory returns the sub category.
func (m *Match) SubCategory() string { return m.subCategory }

// Colour returns the base colour.
func (m *Match) Colour() string { return m.colour }

// Similarity returns 1 - distance. Higher is more similar.
func (m *Match) Similarity() float64 { return m.similarity }
