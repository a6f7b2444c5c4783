// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

package main

import (
	"context"
	"log"

	"github.com/dirid/directory-authentication-library-for-go/apps/confidential"
)

func acquireTokenClientSecret(ctx context.Context) {
	config := CreateConfig("confidential_config.json")

	cred, err := confidential.NewCredFromSecret(config.ClientSecret)
	if err != nil {
		log.Fatal(err)
	}

	app, err := confidential.New(config.ClientID, cred, confidential.WithCache(cacheAccessor), confidential.WithAuthority(config.Authority))
	if err != nil {
		log.Fatal(err)
	}

	result, err := app.AcquireTokenSilent(ctx, config.Scopes)
	if err != nil {
		log.Println(err)
		result, err = app.AcquireTokenByCredential(ctx, config.Scopes)
		if err != nil {
			log.Fatal(err)
		}
		log.Println("Access token is: " + result.AccessToken)
		return
	}
	log.Println("Silently acquired token " + result.AccessToken)
}
