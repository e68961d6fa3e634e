package cache

// Cache is a small key-value cache for serialized API responses.
type Cache interface {
	Get(key string) (string, bool)
	Set(key string, value string) error
	Delete(key string) error
}
