package version

// Version is the current speechcoach version. Overridden at build time with
// -ldflags "-X speechcoach/pkg/version.Version=...".
var Version = "0.1.0"

// UserAgent returns the User-Agent string for outbound HTTP requests
func UserAgent() string {
	return "speechcoach/" + Version
}

// ServerHeader returns the Server header value for API responses
func ServerHeader() string {
	return "speechcoach/" + Version
}
