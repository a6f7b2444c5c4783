// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

package accesstokens

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	internalJSON "github.com/dirid/directory-authentication-library-for-go/apps/internal/json"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/shared"
)

// IDToken consists of all the information used to validate a user.
// https://docs.dirid.net/identity/id-tokens .
type IDToken struct {
	PreferredUsername string `json:"preferred_username,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	MiddleName        string `json:"middle_name,omitempty"`
	Name              string `json:"name,omitempty"`
	Oid               string `json:"oid,omitempty"`
	TenantID          string `json:"tid,omitempty"`
	Subject           string `json:"sub,omitempty"`
	UPN               string `json:"upn,omitempty"`
	Email             string `json:"email,omitempty"`
	AlternativeID     string `json:"alternative_id,omitempty"`
	Issuer            string `json:"iss,omitempty"`
	Audience          string `json:"aud,omitempty"`
	ExpirationTime    int64  `json:"exp,omitempty"`
	IssuedAt          int64  `json:"iat,omitempty"`
	NotBefore         int64  `json:"nbf,omitempty"`
	RawToken          string

	AdditionalFields map[string]interface{}
}

// NewIDToken creates an ID token instance from a JWT.
func NewIDToken(jwt string) (IDToken, error) {
	jwtArr := strings.Split(jwt, ".")
	if len(jwtArr) < 2 {
		return IDToken{}, fmt.Errorf("id token returned from server is invalid")
	}
	jwtPart := jwtArr[1]
	jwtDecoded, err := decodeJWT(jwtPart)
	if err != nil {
		return IDToken{}, err
	}
	idToken := IDToken{}
	err = json.Unmarshal(jwtDecoded, &idToken)
	if err != nil {
		return IDToken{}, err
	}
	idToken.RawToken = jwt
	return idToken, nil
}

// IsZero indicates if the IDToken is the zero value.
func (i IDToken) IsZero() bool {
	v := reflect.ValueOf(i)
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.IsZero() {
			switch field.Kind() {
			case reflect.Map, reflect.Slice:
				if field.Len() == 0 {
					continue
				}
			}
			return false
		}
	}
	return true
}

// GetLocalAccountID extracts an account's local account ID from an ID token.
func (i IDToken) GetLocalAccountID() string {
	if i.Oid != "" {
		return i.Oid
	}
	return i.Subject
}

// ClientInfoJSONPayload is used to create a Home Account ID for an account.
type ClientInfoJSONPayload struct {
	UID  string `json:"uid"`
	Utid string `json:"utid"`

	AdditionalFields map[string]interface{}
}

// RefreshToken is the JSON representation of a refresh token in the cache.
// A token issued for an app family carries the family ID and is shared by
// every client in the family, so the family ID substitutes for the client
// ID in its cache key and the target is dropped.
type RefreshToken struct {
	HomeAccountID  string `json:"home_account_id,omitempty"`
	Environment    string `json:"environment,omitempty"`
	CredentialType string `json:"credential_type,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
	FamilyID       string `json:"family_id,omitempty"`
	Secret         string `json:"secret,omitempty"`
	Realm          string `json:"realm,omitempty"`
	Target         string `json:"target,omitempty"`
	// UserAssertionHash partitions tokens acquired on behalf of a user.
	UserAssertionHash string `json:"user_assertion_hash,omitempty"`

	AdditionalFields map[string]interface{}
}

// NewRefreshToken constructs a RefreshToken.
func NewRefreshToken(homeID, env, clientID, refreshToken, familyID string) RefreshToken {
	return RefreshToken{
		HomeAccountID:  homeID,
		Environment:    env,
		CredentialType: "RefreshToken",
		ClientID:       clientID,
		FamilyID:       familyID,
		Secret:         refreshToken,
	}
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (rt RefreshToken) Key() string {
	cred := rt.ClientID
	target := rt.Target
	if rt.FamilyID != "" {
		cred = rt.FamilyID
		target = ""
	}

	return strings.ToLower(
		strings.Join(
			[]string{rt.HomeAccountID, rt.Environment, rt.CredentialType, cred, rt.Realm, target},
			shared.CacheKeySeparator,
		),
	)
}

func (rt RefreshToken) GetSecret() string {
	return rt.Secret
}

// DeviceCodeResult stores the response from the STS device code endpoint.
type DeviceCodeResult struct {
	// UserCode is the code the user needs to provide when authentication at the verification URI.
	UserCode string
	// DeviceCode is the code used in the access token request.
	DeviceCode string
	// VerificationURL is the the URL where user can authenticate.
	VerificationURL string
	// ExpiresOn is the expiration time of device code in seconds.
	ExpiresOn time.Time
	// Interval is the interval at which the STS should be polled at.
	Interval int
	// Message is the message which should be displayed to the user.
	Message string
	// ClientID is the UUID issued by the authorization server for your application.
	ClientID string
	// Scopes is the OpenID scopes used to request access a protected API.
	Scopes []string
}

// NewDeviceCodeResult creates a DeviceCodeResult instance.
func NewDeviceCodeResult(userCode, deviceCode, verificationURL string, expiresOn time.Time, interval int, message, clientID string, scopes []string) DeviceCodeResult {
	return DeviceCodeResult{userCode, deviceCode, verificationURL, expiresOn, interval, message, clientID, scopes}
}

func (dcr DeviceCodeResult) String() string {
	return fmt.Sprintf("UserCode: (%v)\nDeviceCode: (%v)\nURL: (%v)\nMessage: (%v)\n", dcr.UserCode, dcr.DeviceCode, dcr.VerificationURL, dcr.Message)
}

// TokenResponseJSONPayload is the exact JSON body the token endpoint returns.
// It is translated into a TokenResponse before anything above the ops layer
// sees it.
type TokenResponseJSONPayload struct {
	authority.OAuthResponseBase

	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	// IDToken is the raw JWT; it is decoded into the TokenResponse's IDToken.
	IDToken string `json:"id_token"`
	Scope   string `json:"scope"`
	// ExpiresIn and ExtExpiresIn are lifetimes in seconds from receipt.
	ExpiresIn    int64 `json:"expires_in"`
	ExtExpiresIn int64 `json:"ext_expires_in"`
	// FamilyID identifies the app family a refresh token is shared across.
	FamilyID string `json:"foci"`
	// ClientInfo is a base64 encoded JSON doc identifying the home account.
	ClientInfo string `json:"client_info"`
	TokenType  string `json:"token_type"`

	AdditionalFields map[string]interface{}
}

// TokenResponse is the information that is returned from a token endpoint during a token acquisition flow.
type TokenResponse struct {
	AccessToken    string
	RefreshToken   string
	IDToken        IDToken
	FamilyID       string
	GrantedScopes  []string
	DeclinedScopes []string
	ExpiresOn      time.Time
	ExtExpiresOn   time.Time
	ClientInfo     ClientInfoJSONPayload
	TokenType      string
}

// NewTokenResponse translates the raw JSON payload into a TokenResponse,
// decoding the ID token and client info and resolving granted scopes. The
// expiry times are anchored to a single clock reading.
func NewTokenResponse(authParameters authority.AuthParams, payload TokenResponseJSONPayload) (TokenResponse, error) {
	if payload.Error != "" {
		return TokenResponse{}, fmt.Errorf("%s: %s", payload.Error, payload.ErrorDescription)
	}

	if payload.AccessToken == "" {
		// Access token is required in a token response.
		return TokenResponse{}, fmt.Errorf("response is missing access_token")
	}

	// The token endpoint does not return granted scopes on a refresh, in
	// which case the grant carries over what was requested.
	grantedScopes := []string{}
	declinedScopes := []string{}
	if len(payload.Scope) == 0 {
		grantedScopes = authParameters.Scopes
		declinedScopes = nil
	} else {
		grantedScopes = strings.Split(strings.ToLower(payload.Scope), " ")
		declinedScopes = findDeclinedScopes(authParameters.Scopes, grantedScopes)
	}

	idToken := IDToken{}
	if payload.IDToken != "" {
		var err error
		idToken, err = NewIDToken(payload.IDToken)
		if err != nil {
			return TokenResponse{}, err
		}
	}

	clientInfo := ClientInfoJSONPayload{}
	if payload.ClientInfo != "" {
		rawClientInfo, err := decodeJWT(payload.ClientInfo)
		if err != nil {
			return TokenResponse{}, fmt.Errorf("client_info was not base64 decodeable: %w", err)
		}
		if err := internalJSON.Unmarshal(rawClientInfo, &clientInfo); err != nil {
			return TokenResponse{}, fmt.Errorf("client_info was not JSON decodeable: %w", err)
		}
	}

	now := time.Now()
	tokenResponse := TokenResponse{
		AccessToken:    payload.AccessToken,
		RefreshToken:   payload.RefreshToken,
		IDToken:        idToken,
		FamilyID:       payload.FamilyID,
		ExpiresOn:      now.Add(time.Duration(payload.ExpiresIn) * time.Second),
		ExtExpiresOn:   now.Add(time.Duration(payload.ExtExpiresIn) * time.Second),
		GrantedScopes:  grantedScopes,
		DeclinedScopes: declinedScopes,
		ClientInfo:     clientInfo,
		TokenType:      payload.TokenType,
	}
	return tokenResponse, nil
}

// GetHomeAccountIDFromClientInfo creates the home account ID for an account from the client info parameter.
func (tr TokenResponse) GetHomeAccountIDFromClientInfo() string {
	if tr.ClientInfo.UID == "" || tr.ClientInfo.Utid == "" {
		return ""
	}
	return fmt.Sprintf("%s.%s", tr.ClientInfo.UID, tr.ClientInfo.Utid)
}

func findDeclinedScopes(requestedScopes []string, grantedScopes []string) []string {
	declined := []string{}
	grantedMap := map[string]bool{}
	for _, s := range grantedScopes {
		grantedMap[strings.ToLower(s)] = true
	}
	// Comparing the requested scopes with the granted scopes to see if there are any scopes that have been declined.
	for _, r := range requestedScopes {
		if !grantedMap[strings.ToLower(r)] {
			declined = append(declined, r)
		}
	}
	return declined
}

// decodeJWT decodes a JWT and converts it to a byte array representing a JSON object
// JWT has headers and payload base64url encoded without padding
// https://tools.ietf.org/html/rfc7519#section-3 and
// https://tools.ietf.org/html/rfc7515#section-2
func decodeJWT(data string) ([]byte, error) {
	// https://tools.ietf.org/html/rfc7515#appendix-C : Raw URL encoding
	return base64.RawURLEncoding.DecodeString(data)
}
