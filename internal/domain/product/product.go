package product

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/vecshop/internal/domain"
)

// Stored field names shared by the catalog writer and the ranker.
const (
	FieldID             = "id"
	FieldDisplayName    = "display_name"
	FieldMasterCategory = "master_category"
	FieldSubCategory    = "sub_category"
	FieldBaseColour     = "base_colour"
)

// MetadataFields lists the non-vector fields returned by a ranking query.
var MetadataFields = []string{
	FieldID, FieldDisplayName, FieldMasterCategory, FieldSubCategory, FieldBaseColour,
}

// Product is a catalog row with optional embeddings.
type Product struct {
	id             string
	displayName    string
	masterCategory string
	subCategory    string
	baseColour     string
	textEmbedding  domain.Vector
	imageEmbedding domain.Vector
}

// New validates and creates a Product without embeddings.
func New(id, displayName, masterCategory, subCategory, baseColour string) (Product, error) {
	id = strings.TrimSpace(id)
	if err := CheckID(id); err != nil {
		return Product{}, err
	}
	return Product{
		id:             id,
		displayName:    displayName,
		masterCategory: masterCategory,
		subCategory:    subCategory,
		baseColour:     baseColour,
	}, nil
}

// CheckID rejects ids that cannot name a product key or an image file:
// empty ids and ids holding whitespace, ':' or a path separator.
func CheckID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: product id is required", domain.ErrInvalidArgument)
	}
	if strings.ContainsAny(id, " \t\n:/\\") || id == ".." {
		return fmt.Errorf("%w: product id %q contains whitespace, ':' or a path separator",
			domain.ErrInvalidArgument, id)
	}
	return nil
}

// WithTextEmbedding returns a copy carrying the text embedding.
func (p Product) WithTextEmbedding(v domain.Vector) Product {
	p.textEmbedding = v
	return p
}

// WithImageEmbedding returns a copy carrying the image embedding.
func (p Product) WithImageEmbedding(v domain.Vector) Product {
	p.imageEmbedding = v
	return p
}

// ID returns the product identifier.
func (p *Product) ID() string { return p.id }

// DisplayName returns the product display name.
func (p *Product) DisplayName() string { return p.displayName }

// MasterCategory returns the master category.
func (p *Product) MasterCategory() string { return p.masterCategory }

// SubCategory returns the sub category.
func (p *Product) SubCategory() string { return p.subCategory }

// BaseColour returns the base colour.
func (p *Product) BaseColour() string { return p.baseColour }

// TextEmbedding returns the text embedding, nil when absent.
func (p *Product) TextEmbedding() domain.Vector { return p.textEmbedding }

// ImageEmbedding returns the image embedding, nil when absent.
func (p *Product) ImageEmbedding() domain.Vector { return p.imageEmbedding }

// Embedding returns the embedding for a modality, nil when absent.
func (p *Product) Embedding(m domain.Modality) domain.Vector {
	switch m {
	case domain.ModalityText:
		return p.textEmbedding
	case domain.ModalityImage:
		return p.imageEmbedding
	default:
		return nil
	}
}
