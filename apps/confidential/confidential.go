// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

/*
Package confidential provides a client for authentication of "confidential" applications.
A "confidential" application is defined as an app that runs on servers. They are considered
difficult to access and for that reason capable of keeping an application secret.
Confidential clients can hold configuration-time secrets.
*/
package confidential

/*
Design note:

confidential.Client uses base.Client as an attribute. base.Client statically assigns its
attributes during creation. As it doesn't have any pointers in it, anything borrowed from it,
such as Base.AuthParams, is a copy that is free to be manipulated here.

There are some duplicate call options provided here that are the same as in public.Client.
This is a design choice: a little copying is better than a little dependency. A shared
options package would split two options away from all the others and make users look
through more docs.
*/

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"

	"github.com/dirid/directory-authentication-library-for-go/apps/cache"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/base"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/accesstokens"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/shared"
	"golang.org/x/crypto/pkcs12"
)

// AuthResult contains the results of one token acquisition operation.
type AuthResult = base.AuthResult

// AuthenticationResult is an alias kept for callers of earlier releases.
type AuthenticationResult = base.AuthResult

type Account = shared.Account

// AssertionRequestOptions has the information a client assertion callback needs
// to build an assertion for the token request about to be made.
type AssertionRequestOptions = accesstokens.AssertionRequestOptions

// CertFromPEM converts a PEM file (.pem or .key) for use with NewCredFromCert(). The file
// must contain the public certificate and the private key. The private key must be encoded
// in PKCS8 (not PKCS1). This is usually denoted by the section "PRIVATE KEY" (instead of
// PKCS1's "RSA PRIVATE KEY"). If a PEM block is encrypted and password is not an empty
// string, it attempts to decrypt the PEM blocks using the password. Multiple x509
// certificates are returned when the file holds a certificate chain, though this use case
// should have a single cert.
func CertFromPEM(pemData []byte, password string) ([]*x509.Certificate, crypto.PrivateKey, error) {
	var certs []*x509.Certificate
	var priv crypto.PrivateKey
	for {
		block, rest := pem.Decode(pemData)
		if block == nil {
			break
		}

		//nolint:staticcheck // decrypting legacy encrypted PEM blocks requires the deprecated x509 helpers
		if x509.IsEncryptedPEMBlock(block) {
			b, err := x509.DecryptPEMBlock(block, []byte(password)) //nolint:staticcheck
			if err != nil {
				return nil, nil, fmt.Errorf("could not decrypt encrypted PEM block: %w", err)
			}
			block, _ = pem.Decode(b)
			if block == nil {
				return nil, nil, errors.New("encountered encrypted PEM block that did not decode")
			}
		}

		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("block labelled 'CERTIFICATE' could not be parsed by x509: %w", err)
			}
			certs = append(certs, cert)
		case "PRIVATE KEY":
			if priv != nil {
				return nil, nil, errors.New("found multiple blocks labelled 'PRIVATE KEY'")
			}

			var err error
			priv, err = parsePrivateKey(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("could not decode private key: %w", err)
			}
		}
		pemData = rest
	}

	if len(certs) == 0 {
		return nil, nil, errors.New("no certificates found")
	}

	if priv == nil {
		return nil, nil, errors.New("no private key found")
	}

	return certs, priv, nil
}

// CertFromPKCS12 extracts the certificate and private key from PKCS #12 data (a .pfx or
// .p12 file) for use with NewCredFromCert(). The data must hold exactly one certificate
// and its matching private key.
func CertFromPKCS12(data []byte, password string) (*x509.Certificate, crypto.PrivateKey, error) {
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, nil, fmt.Errorf("could not decode PKCS #12 data: %w", err)
	}
	return cert, key, nil
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("problems decoding private key using PKCS8: %w", err)
	}
	return key, nil
}

// Credential represents the credential used in confidential client flows.
type Credential struct {
	secret string

	cert *x509.Certificate
	key  crypto.PrivateKey

	assertionCallback func(context.Context, AssertionRequestOptions) (string, error)
}

// toInternal returns the accesstokens.Credential that is used internally. The current
// structure of the code requires that the oauth package and this package share a credential
// type without import recursion, so the shared type lives in accesstokens.
func (c Credential) toInternal() *accesstokens.Credential {
	return &accesstokens.Credential{
		Secret:            c.secret,
		Cert:              c.cert,
		Key:               c.key,
		AssertionCallback: c.assertionCallback,
	}
}

// NewCredFromSecret creates a Credential from a secret.
func NewCredFromSecret(secret string) (Credential, error) {
	if secret == "" {
		return Credential{}, errors.New("secret can't be empty string")
	}
	return Credential{secret: secret}, nil
}

// NewCredFromCert creates a Credential from an x509.Certificate and a PKCS8 DER encoded
// private key. CertFromPEM() can be used to get these values from a PEM file.
func NewCredFromCert(cert *x509.Certificate, key crypto.PrivateKey) Credential {
	return Credential{cert: cert, key: key}
}

// NewCredFromAssertionCallback creates a Credential that invokes a callback to get
// assertions authenticating the application. The callback must be thread safe.
func NewCredFromAssertionCallback(callback func(context.Context, AssertionRequestOptions) (string, error)) Credential {
	return Credential{assertionCallback: callback}
}

// Options configures the Client's behavior.
type Options struct {
	// Accessor controls cache persistence. By default there is no cache persistence.
	// This can be set with the WithCache() option.
	Accessor cache.ExportReplace

	// The host of the authority. The default is https://login.dirid.net/common.
	// This can be changed with the WithAuthority() option.
	Authority string

	// The HTTP client used for making requests.
	// It defaults to a shared http.Client.
	HTTPClient ops.HTTPClient

	capabilities []string
}

func (o Options) validate() error {
	u, err := url.Parse(o.Authority)
	if err != nil {
		return fmt.Errorf("the Authority(%s) does not parse as a proper URL", o.Authority)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("the Authority(%s) does not appear to use https", o.Authority)
	}
	return nil
}

// Option is an optional argument to the New constructor.
type Option func(o *Options)

// WithAuthority allows for a custom authority to be set. This must be a valid https url.
func WithAuthority(authority string) Option {
	return func(o *Options) {
		o.Authority = authority
	}
}

// WithCache provides an accessor that will read and write authentication data to an externally managed cache.
func WithCache(accessor cache.ExportReplace) Option {
	return func(o *Options) {
		o.Accessor = accessor
	}
}

// WithClientCapabilities allows the application to declare capabilities it supports, such as "CP1".
// Call this function with the capabilities your application supports.
func WithClientCapabilities(capabilities []string) Option {
	return func(o *Options) {
		o.capabilities = capabilities
	}
}

// WithHTTPClient allows for a custom HTTP client to be set.
func WithHTTPClient(httpClient ops.HTTPClient) Option {
	return func(o *Options) {
		o.HTTPClient = httpClient
	}
}

// Client is a representation of authentication client for confidential applications as
// defined in the package doc. A new Client should be created PER SERVICE USER.
type Client struct {
	base base.Client

	cred *accesstokens.Credential
}

// New is the constructor for Client. clientID is the application's client ID and cred is
// the credential it authenticates with.
func New(clientID string, cred Credential, options ...Option) (Client, error) {
	opts := Options{
		Authority:  base.AuthorityPublicCloud,
		HTTPClient: shared.DefaultClient,
	}

	for _, o := range options {
		o(&opts)
	}
	if err := opts.validate(); err != nil {
		return Client{}, err
	}

	baseClient, err := base.New(clientID, opts.Authority, oauth.New(opts.HTTPClient), base.WithCacheAccessor(opts.Accessor))
	if err != nil {
		return Client{}, err
	}
	baseClient.AuthParams.Capabilities = opts.capabilities

	return Client{
		base: baseClient,
		cred: cred.toInternal(),
	}, nil
}

// CreateAuthCodeURL creates a URL used to acquire an authorization code.
func (cca Client) CreateAuthCodeURL(ctx context.Context, clientID, redirectURI string, scopes []string) (string, error) {
	return cca.base.AuthCodeURL(ctx, clientID, redirectURI, scopes, cca.base.AuthParams)
}

// AcquireSilentOptions are all the optional settings to an AcquireTokenSilent() call.
// These are set by using various AcquireSilentOption functions.
type AcquireSilentOptions struct {
	// Account represents the account to use. To set, use the WithSilentAccount() option.
	Account Account
}

// AcquireSilentOption changes options inside AcquireSilentOptions used in .AcquireTokenSilent().
type AcquireSilentOption func(a *AcquireSilentOptions)

// WithSilentAccount uses the passed account during an AcquireTokenSilent() call.
func WithSilentAccount(account Account) AcquireSilentOption {
	return func(a *AcquireSilentOptions) {
		a.Account = account
	}
}

// AcquireTokenSilent acquires a token from either the cache or using a refresh token.
func (cca Client) AcquireTokenSilent(ctx context.Context, scopes []string, options ...AcquireSilentOption) (AuthResult, error) {
	opts := AcquireSilentOptions{}
	for _, o := range options {
		o(&opts)
	}

	silentParameters := base.AcquireTokenSilentParameters{
		Scopes:      scopes,
		Account:     opts.Account,
		RequestType: accesstokens.ATConfidential,
		Credential:  cca.cred,
	}

	return cca.base.AcquireTokenSilent(ctx, silentParameters)
}

// AcquireTokenByAuthCode is a request to acquire a security token from the authority, using an authorization code.
// The specified redirect URI must be the same URI that was used when the authorization code was requested.
func (cca Client) AcquireTokenByAuthCode(ctx context.Context, code string, redirectURI string, scopes []string) (AuthResult, error) {
	params := base.AcquireTokenAuthCodeParameters{
		Scopes:      scopes,
		Code:        code,
		RedirectURI: redirectURI,
		AppType:     accesstokens.ATConfidential,
		Credential:  cca.cred,
	}

	return cca.base.AcquireTokenByAuthCode(ctx, params)
}

// AcquireTokenByCredential acquires a security token from the authority, using the client credentials grant.
func (cca Client) AcquireTokenByCredential(ctx context.Context, scopes []string) (AuthResult, error) {
	authParams := cca.base.AuthParams
	authParams.Scopes = scopes
	authParams.AuthorizationType = authority.ATClientCredentials

	token, err := cca.base.Token.Credential(ctx, authParams, cca.cred)
	if err != nil {
		return AuthResult{}, err
	}
	return cca.base.AuthResultFromToken(ctx, authParams, token, true)
}

// AcquireTokenOnBehalfOf acquires a security token for an app using a middle tier app's
// access token.
func (cca Client) AcquireTokenOnBehalfOf(ctx context.Context, userAssertion string, scopes []string) (AuthResult, error) {
	params := base.AcquireTokenOnBehalfOfParameters{
		Scopes:        scopes,
		UserAssertion: userAssertion,
		Credential:    cca.cred,
	}

	return cca.base.AcquireTokenOnBehalfOf(ctx, params)
}

// Account gets the account in the token cache with the specified homeAccountID.
func (cca Client) Account(homeAccountID string) Account {
	for _, account := range cca.base.Accounts() {
		if account.HomeAccountID == homeAccountID {
			return account
		}
	}
	return Account{}
}

// Accounts gets all the accounts in the token cache.
// If there are no accounts in the cache the returned slice is empty.
func (cca Client) Accounts() []Account {
	return cca.base.Accounts()
}

// RemoveAccount signs the account out and forgets account from token cache.
func (cca Client) RemoveAccount(account Account) {
	cca.base.RemoveAccount(account)
}
