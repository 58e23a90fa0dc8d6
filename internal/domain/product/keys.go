package product

import "github.com/kailas-cloud/vecshop/internal/domain"

// KeyPrefix returns the key prefix under which products are stored.
func KeyPrefix(storagePrefix string) string {
	return storagePrefix + "product:"
}

// Key returns the storage key for a product id.
func Key(storagePrefix, id string) string {
	return KeyPrefix(storagePrefix) + id
}

// IndexName returns the vector index ranked for a modality.
func IndexName(storagePrefix string, m domain.Modality) string {
	return storagePrefix + "products:" + string(m) + ":idx"
}
