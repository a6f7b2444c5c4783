// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

// Package grant holds types and constants related to OAuth grant types.
package grant

const (
	// AuthCode is the grant_type for the authorization code flow.
	AuthCode = "authorization_code"
	// RefreshToken is the grant_type for redeeming a refresh token.
	RefreshToken = "refresh_token"
	// ClientCredential is the grant_type for app-only token requests.
	ClientCredential = "client_credentials"
	// ClientAssertion is the client_assertion_type for JWT client credentials.
	ClientAssertion = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	// Password is the grant_type for the resource owner password flow.
	Password = "password"
	// SAMLV1 is the grant_type for redeeming a WS-Trust SAML 1.1 assertion.
	SAMLV1 = "urn:ietf:params:oauth:grant-type:saml1_1-bearer"
	// SAMLV2 is the grant_type for redeeming a WS-Trust SAML 2.0 assertion.
	SAMLV2 = "urn:ietf:params:oauth:grant-type:saml2-bearer"
	// DeviceCode is the grant_type for polling during the device code flow.
	DeviceCode = "device_code"
	// JWT is the grant_type for redeeming a user assertion on-behalf-of.
	JWT = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)
