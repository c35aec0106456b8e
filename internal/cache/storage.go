package cache

// Storage is the raw key/value backend behind a Cache. Implementations must
// be safe for concurrent use. Values are opaque serialized strings; freshness
// bookkeeping lives in the Cache layer, not here.
type Storage interface {
	// Get returns the stored value and whether the key was present.
	Get(key string) (string, bool, error)
	// Set stores or replaces the value for a key.
	Set(key, value string) error
	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key string) error
	// Keys returns all stored keys with the given prefix.
	Keys(prefix string) ([]string, error)
	// Close releases backend resources.
	Close() error
}
