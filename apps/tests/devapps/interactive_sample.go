// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

package main

import (
	"context"
	"fmt"

	"github.com/dirid/directory-authentication-library-for-go/apps/public"
)

// acquireTokenInteractive opens the system browser for the user to sign in and
// captures the authorization code on a localhost redirect.
func acquireTokenInteractive(ctx context.Context) {
	config := CreateConfig("config.json")
	app, err := public.New(config.ClientID, public.WithCache(cacheAccessor), public.WithAuthority(config.Authority))
	if err != nil {
		panic(err)
	}

	result, err := app.AcquireTokenInteractive(ctx, config.Scopes, public.WithRedirectURI(config.RedirectURI))
	if err != nil {
		panic(err)
	}
	fmt.Printf("Username: %s; access token: %s\n", result.IDToken.Name, result.AccessToken)
}
