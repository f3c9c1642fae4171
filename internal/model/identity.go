package model

// Identity is a verified user as reported by the identity provider.
type Identity struct {
	UID   string
	Email string
}
