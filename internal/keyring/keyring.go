// Package keyring defines the opaque keying-material provider for
// tenant database encryption. Per spec.md §9, the source's
// encryption_manager hook is documented but its key lifecycle is not;
// this package implements only the documented hook shape plus a
// no-op default, and invents nothing further.
package keyring

// Provider supplies encryption keying material for a tenant database.
// A nil key (or an empty slice) means "no encryption" — the connection
// pool (4.C) skips key application.
type Provider interface {
	GetKey(db, branch, tenant string) ([]byte, error)
}

// None is the default Provider: every tenant is unencrypted.
type None struct{}

// GetKey always returns a nil key.
func (None) GetKey(db, branch, tenant string) ([]byte, error) {
	return nil, nil
}
