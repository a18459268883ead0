// Package version holds the build version, overridden at link time.
package version

// Version is the semantic version of this build.
var Version = "0.1.0-dev"
