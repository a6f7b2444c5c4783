// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

// Package authority handles the metadata describing a directory authority:
// parsing authority URIs, discovering tenant endpoints, resolving host
// aliases through instance discovery and checking a user's realm for
// federation. It also defines AuthParams, the bag of values every token
// request is built from.
package authority

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const (
	authorizationEndpoint     = "https://%v/%v/oauth2/v2.0/authorize"
	instanceDiscoveryEndpoint = "https://%v/common/discovery/instance"
	defaultHost               = "login.dirid.net"
)

// These are the well-known hosts operated by the directory service itself.
// Any other host must pass instance discovery before we trust it.
var trustedHosts = map[string]bool{
	"login.dirid.net":     true,
	"login.dirid.us":      true,
	"login.dirid.cn":      true,
	"sts.dirid.net":       true,
	"login-ppe.dirid.net": true,
}

// TrustedHost checks if an authority host is trusted without instance discovery.
func TrustedHost(host string) bool {
	return trustedHosts[host]
}

// AuthorityType is the type of authority a client is configured against.
const (
	// STS is the multi-tenant directory security token service.
	STS = "STS"
	// Federated is an on-premises federation server reached over WS-Trust.
	Federated = "Federated"
)

// AuthorizeType represents the type of token flow being performed.
type AuthorizeType int

// These are all the types of token flows.
const (
	ATUnknown AuthorizeType = iota
	ATUsernamePassword
	ATAuthCode
	ATInteractive
	ATClientCredentials
	ATDeviceCode
	ATRefreshToken
	ATOnBehalfOf
	ATWindowsIntegrated
)

// OAuthResponseBase is the embedded error envelope every response from the
// service can carry.
type OAuthResponseBase struct {
	Error            string `json:"error"`
	SubError         string `json:"suberror"`
	ErrorDescription string `json:"error_description"`
	ErrorCodes       []int  `json:"error_codes"`
	CorrelationID    string `json:"correlation_id"`
	Claims           string `json:"claims"`

	AdditionalFields map[string]interface{}
}

// TenantDiscoveryResponse is the tenant endpoints from the OpenID configuration endpoint.
type TenantDiscoveryResponse struct {
	OAuthResponseBase

	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	Issuer                string `json:"issuer"`

	AdditionalFields map[string]interface{}
}

// Validate validates a TenantDiscoveryResponse.
func (r *TenantDiscoveryResponse) Validate() error {
	switch "" {
	case r.AuthorizationEndpoint:
		return errors.New("TenantDiscoveryResponse: authorize endpoint was not found in the openid configuration")
	case r.TokenEndpoint:
		return errors.New("TenantDiscoveryResponse: token endpoint was not found in the openid configuration")
	case r.Issuer:
		return errors.New("TenantDiscoveryResponse: issuer was not found in the openid configuration")
	}
	return nil
}

// InstanceDiscoveryMetadata describes one directory instance and the host
// aliases it answers to. Cache lookups must treat all aliases of an
// environment as equal.
type InstanceDiscoveryMetadata struct {
	PreferredNetwork        string   `json:"preferred_network"`
	PreferredCache          string   `json:"preferred_cache"`
	Aliases                 []string `json:"aliases"`
	TenantDiscoveryEndpoint string   `json:"tenant_discovery_endpoint"`

	AdditionalFields map[string]interface{}
}

// InstanceDiscoveryResponse is the response from the instance discovery endpoint.
type InstanceDiscoveryResponse struct {
	TenantDiscoveryEndpoint string                      `json:"tenant_discovery_endpoint"`
	Metadata                []InstanceDiscoveryMetadata `json:"metadata"`

	AdditionalFields map[string]interface{}
}

// AccountType is whether a user's realm is managed directly by the directory
// or federated to an on-premises server.
type AccountType string

// These are the possible account types.
const (
	Managed          AccountType = "Managed"
	FederatedAccount AccountType = "Federated"
)

// UserRealm is the response from the user realm endpoint, telling us whether
// the user authenticates against the directory or a federation server.
type UserRealm struct {
	AccountType       AccountType `json:"account_type"`
	DomainName        string      `json:"domain_name"`
	CloudInstanceName string      `json:"cloud_instance_name"`
	CloudAudienceURN  string      `json:"cloud_audience_urn"`

	// Present only when the realm is federated.
	FederationProtocol    string `json:"federation_protocol"`
	FederationMetadataURL string `json:"federation_metadata_url"`

	AdditionalFields map[string]interface{}
}

func (u UserRealm) validate() error {
	switch {
	case u.AccountType == "":
		return errors.New("the account type (Managed or Federated) is missing")
	case u.AccountType == FederatedAccount:
		if u.FederationProtocol == "" || u.FederationMetadataURL == "" {
			return errors.New("the realm is federated, but is missing federation protocol or metadata URL")
		}
	}
	return nil
}

// Info consists of information about the authority.
type Info struct {
	Host                  string
	CanonicalAuthorityURI string
	AuthorityType         string
	UserRealmURIPrefix    string
	Tenant                string
	ValidateAuthority     bool
}

// NewInfoFromAuthorityURI creates an Info instance from the authority URL provided.
func NewInfoFromAuthorityURI(authority string, validateAuthority bool) (Info, error) {
	u, err := url.Parse(strings.ToLower(authority))
	if err != nil || u.Scheme != "https" {
		return Info{}, errors.New("authority must be an https URL such as https://login.dirid.net/<your tenant>")
	}

	pathParts := strings.Split(u.EscapedPath(), "/")
	if len(pathParts) < 2 || pathParts[1] == "" {
		return Info{}, errors.New("authority does not have two segments as required in: https://<host>/<tenant>")
	}
	tenant := pathParts[1]

	return Info{
		Host:                  u.Host,
		CanonicalAuthorityURI: fmt.Sprintf("https://%v/%v/", u.Host, tenant),
		AuthorityType:         STS,
		UserRealmURIPrefix:    fmt.Sprintf("https://%v/common/userrealm/", u.Host),
		Tenant:                tenant,
		ValidateAuthority:     validateAuthority,
	}, nil
}

// Endpoints consists of the endpoints from the tenant discovery response.
type Endpoints struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	selfSignedJwtAudience string
	authorityHost         string
}

// NewEndpoints creates an Endpoints object.
func NewEndpoints(authorizationEndpoint string, tokenEndpoint string, selfSignedJwtAudience string, authorityHost string) Endpoints {
	return Endpoints{authorizationEndpoint, tokenEndpoint, selfSignedJwtAudience, authorityHost}
}

// SelfSignedJwtAudience is the audience claim a client places in assertions
// it signs with its own certificate.
func (e Endpoints) SelfSignedJwtAudience() string {
	return e.selfSignedJwtAudience
}

// UserRealmEndpoint returns the endpoint for querying a user's realm.
func (e Endpoints) UserRealmEndpoint(username string) string {
	return fmt.Sprintf("https://%s/common/UserRealm/%s", e.authorityHost, url.PathEscape(username))
}

// AuthParams represents the parameters used to authorize a token request.
// They are built once per logical request and treated as immutable by the
// layers below; cache keys are derived from the identifying fields here.
type AuthParams struct {
	AuthorityInfo Info
	CorrelationID string
	Endpoints     Endpoints
	ClientID      string
	// Redirecturi is used during the authorization code flow.
	Redirecturi   string
	HomeAccountID string
	// Username is the user-name portion for username/password auth.
	Username string
	// Password is the password portion for username/password auth.
	Password string
	// Scopes is the list of scopes the user consents to.
	Scopes []string
	// AuthorizationType specifies the type of token flow.
	AuthorizationType AuthorizeType
	// State is a random value used to prevent cross-site request forgery attacks.
	State string
	// CodeChallenge is derived from a code verifier and is sent in the auth request.
	CodeChallenge string
	// CodeChallengeMethod describes the method used to create the CodeChallenge.
	CodeChallengeMethod string
	// UserAssertion is the access token used to acquire a token on behalf of a user.
	UserAssertion string
	// Capabilities the client will include with each token request, for example "CP1".
	Capabilities []string
	// Claims required for an access token to satisfy a conditional access policy.
	Claims string
	// KnownAuthorityHosts don't require metadata discovery because they're known to the user.
	KnownAuthorityHosts []string
	// Prompt specifies the user prompt type during interactive auth.
	Prompt string
	// LoginHint is a username with which to pre-populate account selection during interactive auth.
	LoginHint string
	// DomainHint is a directive that can be used to accelerate the user to their federation endpoint.
	DomainHint string
	// ExtraBodyParameters are additional form values merged into token request
	// bodies. They never overwrite values the flow itself sets.
	ExtraBodyParameters map[string]string
}

// NewAuthParams creates an authorization parameters object.
func NewAuthParams(clientID string, authorityInfo Info) AuthParams {
	return AuthParams{
		ClientID:      clientID,
		AuthorityInfo: authorityInfo,
		CorrelationID: uuid.New().String(),
	}
}

// AssertionHash returns a SHA-256 hash of the user assertion. It partitions
// the on-behalf-of token cache without storing the assertion itself.
func (p AuthParams) AssertionHash() string {
	hash := sha256.Sum256([]byte(p.UserAssertion))
	return hex.EncodeToString(hash[:])
}

// AppKey is the partition key for application (client credentials) token
// cache entries.
func (p AuthParams) AppKey() string {
	if p.AuthorityInfo.Tenant != "" {
		return fmt.Sprintf("%s_%s_AppTokenCache", p.ClientID, p.AuthorityInfo.Tenant)
	}
	return fmt.Sprintf("%s__AppTokenCache", p.ClientID)
}

// CacheKey is the suggested partition key handed to external cache accessors
// when the cache is exported or replaced around a token operation.
func (p AuthParams) CacheKey() string {
	switch p.AuthorizationType {
	case ATOnBehalfOf:
		return p.AssertionHash()
	case ATClientCredentials:
		return p.AppKey()
	}
	return p.HomeAccountID
}

// WithTenant returns a copy of the AuthParams having the specified tenant.
func (p AuthParams) WithTenant(ID string) (AuthParams, error) {
	switch ID {
	case "", p.AuthorityInfo.Tenant:
		return p, nil
	case "common", "consumers", "organizations":
		return p, fmt.Errorf(`tenant ID must be a specific tenant, not "%s"`, ID)
	}
	info := p.AuthorityInfo
	info.Tenant = ID
	info.CanonicalAuthorityURI = fmt.Sprintf("https://%s/%s/", info.Host, ID)
	p.AuthorityInfo = info
	return p, nil
}

// MergeCapabilitiesAndClaims combines client capabilities and claims challenge
// values into a single claims JSON string for the authorize and token
// endpoints. Neither being set yields "".
func (p AuthParams) MergeCapabilitiesAndClaims() (string, error) {
	if len(p.Capabilities) == 0 {
		return p.Claims, nil
	}
	claims := map[string]interface{}{}
	if p.Claims != "" {
		if err := json.Unmarshal([]byte(p.Claims), &claims); err != nil {
			return "", fmt.Errorf("claims must be JSON: %w", err)
		}
	}
	accessToken, ok := claims["access_token"].(map[string]interface{})
	if !ok {
		accessToken = map[string]interface{}{}
	}
	values := make([]interface{}, len(p.Capabilities))
	for i, c := range p.Capabilities {
		values[i] = c
	}
	accessToken["xms_cc"] = map[string]interface{}{"values": values}
	claims["access_token"] = accessToken

	b, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type jsonCaller interface {
	JSONCall(ctx context.Context, endpoint string, headers http.Header, qv url.Values, body, resp interface{}) error
}

// Client represents the REST calls to authority backends.
type Client struct {
	// Comm provides the HTTP transport client.
	Comm jsonCaller
}

// UserRealm queries the user realm endpoint to determine whether the user is
// managed by the directory or federated.
func (c Client) UserRealm(ctx context.Context, authParameters AuthParams) (UserRealm, error) {
	endpoint := authParameters.Endpoints.UserRealmEndpoint(authParameters.Username)
	qv := url.Values{
		"api-version": []string{"1.0"},
	}
	headers := http.Header{
		"client-request-id": []string{authParameters.CorrelationID},
	}

	resp := UserRealm{}
	err := c.Comm.JSONCall(ctx, endpoint, headers, qv, nil, &resp)
	if err != nil {
		return resp, err
	}
	return resp, resp.validate()
}

// GetTenantDiscoveryResponse fetches the OpenID configuration document for a tenant.
func (c Client) GetTenantDiscoveryResponse(ctx context.Context, openIDConfigurationEndpoint string) (TenantDiscoveryResponse, error) {
	resp := TenantDiscoveryResponse{}
	err := c.Comm.JSONCall(ctx, openIDConfigurationEndpoint, http.Header{}, nil, nil, &resp)
	return resp, err
}

// InstanceDiscovery attempts to discover a cloud instance and the aliases of
// the configured authority host.
func (c Client) InstanceDiscovery(ctx context.Context, authorityInfo Info) (InstanceDiscoveryResponse, error) {
	var resp InstanceDiscoveryResponse

	discoveryHost := defaultHost
	if trustedHosts[authorityInfo.Host] {
		discoveryHost = authorityInfo.Host
	}

	endpoint := fmt.Sprintf(instanceDiscoveryEndpoint, discoveryHost)
	qv := url.Values{
		"api-version":            []string{"1.1"},
		"authorization_endpoint": []string{fmt.Sprintf(authorizationEndpoint, authorityInfo.Host, authorityInfo.Tenant)},
	}

	err := c.Comm.JSONCall(ctx, endpoint, http.Header{}, qv, nil, &resp)
	return resp, err
}
