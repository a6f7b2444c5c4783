// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

/*
Package ops provides operations to various backend services using REST clients.

The REST type provides several clients that can be used to communicate to backends.
Usage is simple:

	rest := ops.New(httpClient)

	// Creates an authority client and calls the UserRealm() method.
	userRealm, err := rest.Authority().UserRealm(ctx, authParameters)
	if err != nil {
		// Do something
	}
*/
package ops

import (
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/accesstokens"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/internal/comm"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/wstrust"
)

// HTTPClient represents an HTTP client.
// It's usually an *http.Client from the standard library.
type HTTPClient = comm.HTTPClient

// ChallengeSigner answers device auth challenges with a signed assertion.
type ChallengeSigner = comm.ChallengeSigner

// REST provides REST clients for communicating with the various backends the
// library talks to.
type REST struct {
	client *comm.Client
}

// New is the constructor for REST.
func New(httpClient HTTPClient) *REST {
	return &REST{client: comm.New(httpClient)}
}

// NewWithSigner is New for clients that can sign device auth challenges.
func NewWithSigner(httpClient HTTPClient, signer ChallengeSigner) *REST {
	return &REST{client: comm.NewWithSigner(httpClient, signer)}
}

// AccessTokens returns a client that can be used to get various access tokens for
// authorization purposes.
func (r *REST) AccessTokens() accesstokens.Client {
	return accesstokens.Client{
		Comm:          r.client,
		TokenRespFunc: accesstokens.NewTokenResponse,
	}
}

// Authority returns a client that can be used to gather information about an authority.
func (r *REST) Authority() authority.Client {
	return authority.Client{Comm: r.client}
}

// WSTrust returns a client that can be used to make calls to WS-Trust services.
func (r *REST) WSTrust() wstrust.Client {
	return wstrust.Client{Comm: r.client}
}
