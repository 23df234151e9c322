package stdlib

// Default builds the standard registry of every function spec.md §4.G
// names. Called once at process start (cmd/wdlrun), per spec.md §9's
// registries-over-dynamic-discovery note.
func Default() *Registry {
	r := NewRegistry()
	registerMath(r)
	registerStringsAndFiles(r)
	registerCollections(r)
	return r
}
