// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

// Command devapps runs one of the manual samples against a real authority.
// Each sample reads its settings from config.json or confidential_config.json
// in the working directory.
package main

import (
	"context"
	"fmt"
	"os"
)

var cacheAccessor = &TokenCache{file: "serialized_cache.json"}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	ctx := context.Background()

	switch os.Args[1] {
	case "device-code":
		acquireTokenDeviceCode(ctx)
	case "username-password":
		acquireByUsernamePasswordPublic(ctx)
	case "auth-code":
		acquireByAuthCodePublic(ctx)
	case "interactive":
		acquireTokenInteractive(ctx)
	case "client-secret":
		// App tokens land in the in-memory cache, so acquiring twice shows
		// the second result coming from the cache.
		acquireTokenClientSecret(ctx)
		acquireTokenClientSecret(ctx)
	case "client-certificate":
		acquireTokenClientCertificate(ctx)
		acquireTokenClientCertificate(ctx)
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: devapps device-code|username-password|auth-code|interactive|client-secret|client-certificate")
	os.Exit(2)
}
