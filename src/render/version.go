package render

// LibraryVersion is injected at build time via -ldflags
var LibraryVersion = "dev"

// Version returns the current version of the geoviz rendering layer.
func Version() string {
	return LibraryVersion
}
