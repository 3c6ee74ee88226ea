// Package main provides the service-admin-cli tool for inspecting and
// managing an admin server.
package main

import (
	"os"

	"github.com/sirosfoundation/go-service-admin/cmd/service-admin-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
