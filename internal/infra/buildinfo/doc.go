// Package buildinfo reports the credvault build version.
//
// Release builds inject values with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/credvault/internal/infra/buildinfo.Version=v1.0.0"
//
// Fields left unset fall back to the module build information embedded
// by the Go toolchain.
package buildinfo
