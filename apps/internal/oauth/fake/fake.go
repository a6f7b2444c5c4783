// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

// Package fake provides fake implementations of the oauth package's interfaces
// for tests in other packages to inject.
package fake

import (
	"context"
	"errors"
	"time"

	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/accesstokens"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/wstrust"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/wstrust/defs"
)

// ResolveEndpoints is a fake for the oauth.ResolveEndpointer interface.
type ResolveEndpoints struct {
	// Err being true causes all methods to return an error.
	Err bool
	// Endpoints is returned on success. When zero, placeholder endpoints
	// are returned instead.
	Endpoints authority.Endpoints
}

func (f ResolveEndpoints) ResolveEndpoints(ctx context.Context, authorityInfo authority.Info, userPrincipalName string) (authority.Endpoints, error) {
	if f.Err {
		return authority.Endpoints{}, errors.New("fake ResolveEndpoints error")
	}
	if f.Endpoints != (authority.Endpoints{}) {
		return f.Endpoints, nil
	}
	return authority.NewEndpoints(
		"https://authorization.endpoint.com",
		"https://token.endpoint.com",
		"https://token.endpoint.com",
		"host",
	), nil
}

// AccessTokens is a fake for the oauth.AccessTokens interface.
type AccessTokens struct {
	// Err being true causes all methods to return an error.
	Err bool

	// AccessToken is the TokenResponse successful calls return.
	AccessToken accesstokens.TokenResponse

	// Result is the sequence of errors FromDeviceCodeResult returns, consumed
	// in order. A nil entry is a successful poll.
	Result []error
	// Next is the index of the next entry of Result to consume.
	Next int

	// FromRefreshTokenCallback is called with FromRefreshToken's arguments
	// before it returns, letting a test observe what was sent.
	FromRefreshTokenCallback func(appType accesstokens.AppType, authParams authority.AuthParams, cc *accesstokens.Credential, refreshToken string)
}

func (f *AccessTokens) DeviceCodeResult(ctx context.Context, authParameters authority.AuthParams) (accesstokens.DeviceCodeResult, error) {
	if f.Err {
		return accesstokens.DeviceCodeResult{}, errors.New("fake DeviceCodeResult error")
	}
	return accesstokens.DeviceCodeResult{ExpiresOn: time.Now().Add(5 * time.Minute)}, nil
}

func (f *AccessTokens) FromUsernamePassword(ctx context.Context, authParameters authority.AuthParams) (accesstokens.TokenResponse, error) {
	if f.Err {
		return accesstokens.TokenResponse{}, errors.New("fake FromUsernamePassword error")
	}
	return f.AccessToken, nil
}

func (f *AccessTokens) FromAuthCode(ctx context.Context, req accesstokens.AuthCodeRequest) (accesstokens.TokenResponse, error) {
	if f.Err {
		return accesstokens.TokenResponse{}, errors.New("fake FromAuthCode error")
	}
	return f.AccessToken, nil
}

func (f *AccessTokens) FromRefreshToken(ctx context.Context, appType accesstokens.AppType, authParams authority.AuthParams, cc *accesstokens.Credential, refreshToken string) (accesstokens.TokenResponse, error) {
	if f.FromRefreshTokenCallback != nil {
		f.FromRefreshTokenCallback(appType, authParams, cc, refreshToken)
	}
	if f.Err {
		return accesstokens.TokenResponse{}, errors.New("fake FromRefreshToken error")
	}
	return f.AccessToken, nil
}

func (f *AccessTokens) FromClientSecret(ctx context.Context, authParameters authority.AuthParams, clientSecret string) (accesstokens.TokenResponse, error) {
	if f.Err {
		return accesstokens.TokenResponse{}, errors.New("fake FromClientSecret error")
	}
	return f.AccessToken, nil
}

func (f *AccessTokens) FromAssertion(ctx context.Context, authParameters authority.AuthParams, assertion string) (accesstokens.TokenResponse, error) {
	if f.Err {
		return accesstokens.TokenResponse{}, errors.New("fake FromAssertion error")
	}
	return f.AccessToken, nil
}

func (f *AccessTokens) FromUserAssertionClientSecret(ctx context.Context, authParameters authority.AuthParams, userAssertion string, clientSecret string) (accesstokens.TokenResponse, error) {
	if f.Err {
		return accesstokens.TokenResponse{}, errors.New("fake FromUserAssertionClientSecret error")
	}
	return f.AccessToken, nil
}

func (f *AccessTokens) FromUserAssertionClientCertificate(ctx context.Context, authParameters authority.AuthParams, userAssertion string, assertion string) (accesstokens.TokenResponse, error) {
	if f.Err {
		return accesstokens.TokenResponse{}, errors.New("fake FromUserAssertionClientCertificate error")
	}
	return f.AccessToken, nil
}

func (f *AccessTokens) FromDeviceCodeResult(ctx context.Context, authParameters authority.AuthParams, deviceCodeResult accesstokens.DeviceCodeResult) (accesstokens.TokenResponse, error) {
	if f.Next < len(f.Result) {
		v := f.Result[f.Next]
		f.Next++
		if v == nil {
			return f.AccessToken, nil
		}
		return accesstokens.TokenResponse{}, v
	}
	panic("fake.AccessTokens.FromDeviceCodeResult() asked for more return values than provided")
}

func (f *AccessTokens) FromSamlGrant(ctx context.Context, authParameters authority.AuthParams, samlGrant wstrust.SamlTokenInfo) (accesstokens.TokenResponse, error) {
	if f.Err {
		return accesstokens.TokenResponse{}, errors.New("fake FromSamlGrant error")
	}
	return f.AccessToken, nil
}

// Authority is a fake for the oauth.FetchAuthority interface.
type Authority struct {
	// Err being true causes all methods to return an error.
	Err bool

	// Realm is returned by UserRealm().
	Realm authority.UserRealm

	// InstanceResp is returned by InstanceDiscovery().
	InstanceResp authority.InstanceDiscoveryResponse
}

func (f Authority) UserRealm(ctx context.Context, params authority.AuthParams) (authority.UserRealm, error) {
	if f.Err {
		return authority.UserRealm{}, errors.New("fake UserRealm error")
	}
	return f.Realm, nil
}

func (f Authority) InstanceDiscovery(ctx context.Context, info authority.Info) (authority.InstanceDiscoveryResponse, error) {
	if f.Err {
		return authority.InstanceDiscoveryResponse{}, errors.New("fake InstanceDiscovery error")
	}
	return f.InstanceResp, nil
}

// WSTrust is a fake for the oauth.FetchWSTrust interface.
type WSTrust struct {
	// GetMexErr causes Mex() to return an error.
	GetMexErr bool
	// GetSAMLTokenInfoErr causes SAMLTokenInfo() to return an error.
	GetSAMLTokenInfoErr bool

	// MexDocument is returned by Mex().
	MexDocument defs.MexDocument

	// SamlTokenInfo is returned by SAMLTokenInfo().
	SamlTokenInfo wstrust.SamlTokenInfo
}

func (f WSTrust) Mex(ctx context.Context, federationMetadataURL string) (defs.MexDocument, error) {
	if f.GetMexErr {
		return defs.MexDocument{}, errors.New("fake Mex error")
	}
	return f.MexDocument, nil
}

func (f WSTrust) SAMLTokenInfo(ctx context.Context, authParameters authority.AuthParams, cloudAudienceURN string, endpoint defs.Endpoint) (wstrust.SamlTokenInfo, error) {
	if f.GetSAMLTokenInfoErr {
		return wstrust.SamlTokenInfo{}, errors.New("fake SAMLTokenInfo error")
	}
	return f.SamlTokenInfo, nil
}
