package version

// Version is the current scout release.
const Version = "1.0.0"

// BuildVersion returns the version string printed by the CLI.
func BuildVersion() string {
	return "scout version " + Version
}

// APIVersion returns the bare version number used in API responses.
func APIVersion() string {
	return Version
}
