// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/dirid/directory-authentication-library-for-go/apps/public"
)

func acquireByUsernamePasswordPublic(ctx context.Context) {
	config := CreateConfig("config.json")
	app, err := public.New(config.ClientID, public.WithCache(cacheAccessor), public.WithAuthority(config.Authority))
	if err != nil {
		panic(err)
	}

	// look in the cache to see if the account to use has been cached
	var userAccount public.Account
	for _, account := range app.Accounts() {
		if account.PreferredUsername == config.Username {
			userAccount = account
		}
	}
	result, err := app.AcquireTokenSilent(ctx, config.Scopes, public.WithSilentAccount(userAccount))
	if err != nil {
		// either there's no applicable token in the cache or something failed
		log.Println(err)
		result, err = app.AcquireTokenByUsernamePassword(ctx, config.Scopes, config.Username, config.Password)
		if err != nil {
			log.Fatal(err)
		}
	}
	fmt.Println("Access token is " + result.AccessToken)
}
