// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

/*
Package wstrust provides a client for communicating with a WS-Trust (https://en.wikipedia.org/wiki/WS-Trust)
service. The client gathers metadata about the service from its MEX document and
exchanges a user credential for a SAML assertion the token endpoint accepts.
*/
package wstrust

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/internal/grant"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/wstrust/defs"
)

type xmlCaller interface {
	XMLCall(ctx context.Context, endpoint string, headers http.Header, qv url.Values, resp interface{}) error
	SOAPCall(ctx context.Context, endpoint, action string, headers http.Header, qv url.Values, body string, resp interface{}) error
}

// SamlTokenInfo is the assertion a WS-Trust issuance returned and the grant
// type it should be sent to the token endpoint under.
type SamlTokenInfo struct {
	AssertionType string // Should be either grant.SAMLV1 or grant.SAMLV2.
	Assertion     string
}

// Client represents the URL lookup and issuance of tokens from a federated STS.
type Client struct {
	// Comm provides the HTTP transport client.
	Comm xmlCaller
}

// This allows tests to run Mex() without standing up a full decoder.
var newFromDef = defs.NewFromDef

// Mex provides metadata about a wstrust service.
func (c Client) Mex(ctx context.Context, federationMetadataURL string) (defs.MexDocument, error) {
	resp := defs.Definitions{}
	err := c.Comm.XMLCall(ctx, federationMetadataURL, http.Header{}, url.Values{}, &resp)
	if err != nil {
		return defs.MexDocument{}, err
	}

	return newFromDef(resp)
}

const (
	SoapActionDefault = "http://docs.oasis-open.org/ws-sx/ws-trust/200512/RST/Issue"

	// Note: Commented out because this action is not supported. It was in the original
	// code, so I'm keeping it for future use if we ever need to support WsTrust2005.
	// SoapActionWSTrust2005 = "http://schemas.xmlsoap.org/ws/2005/02/trust/RST/Issue"
)

// SAMLTokenInfo issues a SAML assertion from the WS-Trust endpoint for the
// credential described in authParameters.
func (c Client) SAMLTokenInfo(ctx context.Context, authParameters authority.AuthParams, cloudAudienceURN string, endpoint defs.Endpoint) (SamlTokenInfo, error) {
	var wsTrustRequestMessage string
	var err error

	switch authParameters.AuthorizationType {
	case authority.ATWindowsIntegrated:
		wsTrustRequestMessage, err = endpoint.BuildTokenRequestMessageWIA(cloudAudienceURN)
		if err != nil {
			return SamlTokenInfo{}, err
		}
	case authority.ATUsernamePassword:
		wsTrustRequestMessage, err = endpoint.BuildTokenRequestMessageUsernamePassword(
			cloudAudienceURN, authParameters.Username, authParameters.Password)
		if err != nil {
			return SamlTokenInfo{}, err
		}
	default:
		return SamlTokenInfo{}, fmt.Errorf("unknown auth type %v", authParameters.AuthorizationType)
	}

	var soapAction string
	switch endpoint.Version {
	case defs.Trust13:
		soapAction = SoapActionDefault
	case defs.Trust2005:
		return SamlTokenInfo{}, errors.New("WS Trust 2005 support is not implemented")
	default:
		return SamlTokenInfo{}, fmt.Errorf("unknown WS-Trust endpoint version found: %v", endpoint.Version)
	}

	resp := defs.SAMLDefinitions{}
	err = c.Comm.SOAPCall(ctx, endpoint.URL, soapAction, http.Header{}, nil, wsTrustRequestMessage, &resp)
	if err != nil {
		return SamlTokenInfo{}, err
	}

	return c.samlAssertion(resp)
}

const (
	samlv1Assertion = "urn:oasis:names:tc:SAML:1.0:assertion"
	samlv2Assertion = "urn:oasis:names:tc:SAML:2.0:assertion"
)

func (c Client) samlAssertion(def defs.SAMLDefinitions) (SamlTokenInfo, error) {
	for _, tokenResponse := range def.Body.RequestSecurityTokenResponseCollection.RequestSecurityTokenResponse {
		token := tokenResponse.RequestedSecurityToken
		if token.Assertion.XMLName.Local != "" {
			assertion := token.AssertionRawXML

			samlVersion := token.Assertion.Saml
			switch samlVersion {
			case samlv1Assertion:
				return SamlTokenInfo{AssertionType: grant.SAMLV1, Assertion: assertion}, nil
			case samlv2Assertion:
				return SamlTokenInfo{AssertionType: grant.SAMLV2, Assertion: assertion}, nil
			}
			return SamlTokenInfo{}, fmt.Errorf("could not parse SAML assertion, version unknown: %q", samlVersion)
		}
	}
	return SamlTokenInfo{}, errors.New("unknown WS-Trust version")
}
