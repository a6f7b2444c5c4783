// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/dirid/directory-authentication-library-for-go/apps/public"
)

// acquireByAuthCodePublic runs a tiny web app that sends the user to the
// authority for an authorization code and then redeems the code for a token.
// The redirect URI registered for the app must be http://localhost:3000/redirect.
func acquireByAuthCodePublic(ctx context.Context) {
	config := CreateConfig("config.json")
	app, err := public.New(config.ClientID, public.WithCache(cacheAccessor), public.WithAuthority(config.Authority))
	if err != nil {
		panic(err)
	}

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		authURL, err := app.CreateAuthCodeURL(r.Context(), config.ClientID, config.RedirectURI, config.Scopes)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, authURL, http.StatusSeeOther)
	})
	http.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "authorization code missing", http.StatusBadRequest)
			return
		}
		result, err := app.AcquireTokenByAuthCode(r.Context(), code, config.RedirectURI, config.Scopes)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, "Access token is %s", result.AccessToken)
	})
	log.Fatal(http.ListenAndServe(":3000", nil))
}
