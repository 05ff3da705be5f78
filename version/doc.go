// Package version reports the build version of restkit binaries.
//
// Version and Commit are set at link time; anything left empty is filled
// from the module build info:
//
//	go build -ldflags "-X github.com/kbukum/restkit/version.Version=1.4.0" ./cmd/restcall
package version
