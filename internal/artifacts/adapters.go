package artifacts

// Cache answers whether a conversion artifact already exists at a path.
// Implementations must never report half-written files as present; writers
// uphold that by staging output next to the destination and renaming it
// into place only on success.
type Cache interface {
	Exists(path string) bool
	Describe(path string) (Description, error)
}
