// Package version holds the dispatcher build identifier stamped on every parse outcome.
package version

// Version is overridden at link time:
//
//	go build -ldflags "-X github.com/feichai0017/pdf-dispatcher/pkg/version.Version=1.4.0"
var Version = "0.1.0-dev"
