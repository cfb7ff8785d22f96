package cache

import "context"

// HashStore is a key/field store. Missing keys and fields are not errors.
type HashStore interface {
	// GetField returns one field of key; ok is false when either is absent.
	GetField(ctx context.Context, key, field string) (value string, ok bool, err error)
	// GetAll returns every field of key, or an empty map.
	GetAll(ctx context.Context, key string) (map[string]string, error)
	// PutAll writes fields into key, keeping fields not mentioned.
	PutAll(ctx context.Context, key string, fields map[string]string) error
	// Replace deletes key and writes fields as one atomic step.
	Replace(ctx context.Context, key string, fields map[string]string) error
	// Delete removes key.
	Delete(ctx context.Context, key string) error
}
