// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

// Package storage holds all cached token information. Records are kept in a
// key-value Store, partitioned by credential type and addressed by the keys
// the records derive from their identifying fields. The default Store is in
// process memory; reads and writes in upper packages can call Marshal() to
// take the entire representation and write it to persistent storage and
// Unmarshal() to replace the entire representation with what was persisted.
// The persisted form is a contract shared with the library's implementations
// in other languages and cannot change here alone.
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dirid/directory-authentication-library-for-go/apps/internal/json"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/accesstokens"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/shared"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/slog"
)

// instanceDiscoveryer allows faking in tests.
// It is implemented in production by ops/authority.Client
type instanceDiscoveryer interface {
	InstanceDiscovery(ctx context.Context, authorityInfo authority.Info) (authority.InstanceDiscoveryResponse, error)
}

// TokenResponse mimics a token response that was pulled from the cache.
type TokenResponse struct {
	RefreshToken accesstokens.RefreshToken
	IDToken      IDToken
	AccessToken  AccessToken
	Account      shared.Account
}

// Manager is a cache of access tokens, accounts and metadata over a Store.
// This data is updated on read/write calls. Unmarshal() replaces all data
// stored here with whatever was given to it on each call.
type Manager struct {
	store    Store
	log      *slog.Logger
	requests instanceDiscoveryer // *oauth.Client

	// extra carries unknown top-level sections of a deserialized cache so
	// Marshal can round-trip them.
	extraMu sync.RWMutex
	extra   map[string]interface{}

	instanceCacheMu sync.RWMutex
	instanceCache   map[string]authority.InstanceDiscoveryMetadata
}

// Option configures a Manager.
type Option func(m *Manager)

// WithStore backs the Manager with the given Store instead of the default
// in-memory one.
func WithStore(s Store) Option {
	return func(m *Manager) {
		m.store = s
	}
}

// WithLogger sets the logger records that cannot be deserialized are
// reported on.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// New is the constructor for Manager.
func New(requests *oauth.Client, options ...Option) *Manager {
	m := &Manager{
		store:         NewInMemory(),
		log:           slog.New(nil),
		requests:      requests,
		instanceCache: make(map[string]authority.InstanceDiscoveryMetadata),
	}
	for _, o := range options {
		o(m)
	}
	return m
}

func checkAlias(alias string, aliases []string) bool {
	for _, v := range aliases {
		if alias == v {
			return true
		}
	}
	return false
}

func isMatchingScopes(scopesOne []string, scopesTwo string) bool {
	newScopesTwo := strings.Split(strings.ToLower(scopesTwo), scopeSeparator)
	scopeCounter := 0
	for _, scope := range scopesOne {
		for _, otherScope := range newScopesTwo {
			if strings.EqualFold(scope, otherScope) {
				scopeCounter++
				continue
			}
		}
	}
	return scopeCounter == len(scopesOne)
}

// load reads and deserializes the record stored under key, reporting whether
// v was populated. A record that cannot be deserialized is skipped and
// logged, never surfaced as an error; one bad entry must not take out the
// whole cache.
func (m *Manager) load(kind Kind, key string, v interface{}) bool {
	data, ok := m.store.Read(kind, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		if m.log != nil {
			m.log.Warn("skipping unreadable cache record", "kind", string(kind), "key", key, "err", err.Error())
		}
		return false
	}
	return true
}

func (m *Manager) save(kind Kind, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling cache record %q: %w", key, err)
	}
	m.store.Write(kind, key, data)
	return nil
}

// Read reads a storage token from the cache if it exists.
func (m *Manager) Read(ctx context.Context, authParameters authority.AuthParams) (TokenResponse, error) {
	tr := TokenResponse{}
	homeAccountID := authParameters.HomeAccountID
	realm := authParameters.AuthorityInfo.Tenant
	clientID := authParameters.ClientID
	scopes := authParameters.Scopes

	metadata, err := m.getMetadataEntry(ctx, authParameters.AuthorityInfo)
	if err != nil {
		return TokenResponse{}, err
	}

	tr.AccessToken = m.readAccessToken(homeAccountID, metadata.Aliases, realm, clientID, scopes)

	if homeAccountID == "" {
		// caller didn't specify a user, so there's no reason to search for an ID or refresh token
		return tr, nil
	}
	if idToken, err := m.readIDToken(homeAccountID, metadata.Aliases, realm, clientID); err == nil {
		tr.IDToken = idToken
	}

	var familyID string
	if appMetadata, err := m.readAppMetaData(metadata.Aliases, clientID); err == nil {
		familyID = appMetadata.FamilyID
	}
	if rt, err := m.readRefreshToken(homeAccountID, metadata.Aliases, familyID, clientID); err == nil {
		tr.RefreshToken = rt
	}
	if account, err := m.readAccount(homeAccountID, metadata.Aliases, realm); err == nil {
		tr.Account = account
	}
	return tr, nil
}

const scopeSeparator = " "

// Write writes a token response to the cache and returns the account information the token is stored with.
func (m *Manager) Write(authParameters authority.AuthParams, tokenResponse accesstokens.TokenResponse) (shared.Account, error) {
	homeAccountID := tokenResponse.GetHomeAccountIDFromClientInfo()
	environment := authParameters.AuthorityInfo.Host
	realm := authParameters.AuthorityInfo.Tenant
	clientID := authParameters.ClientID
	target := strings.Join(tokenResponse.GrantedScopes, scopeSeparator)

	cachedAt := time.Now()

	var account shared.Account

	if len(tokenResponse.RefreshToken) > 0 {
		refreshToken := accesstokens.NewRefreshToken(homeAccountID, environment, clientID, tokenResponse.RefreshToken, tokenResponse.FamilyID)
		if err := m.writeRefreshToken(refreshToken); err != nil {
			return account, err
		}
	}

	if len(tokenResponse.AccessToken) > 0 {
		accessToken := NewAccessToken(
			homeAccountID,
			environment,
			realm,
			clientID,
			cachedAt,
			tokenResponse.ExpiresOn,
			tokenResponse.ExtExpiresOn,
			target,
			tokenResponse.AccessToken,
		)

		// Since we have a valid access token, cache it before moving on.
		if err := accessToken.Validate(); err == nil {
			if err := m.writeAccessToken(accessToken); err != nil {
				return account, err
			}
		}
	}

	idTokenJwt := tokenResponse.IDToken
	if !idTokenJwt.IsZero() {
		idToken := NewIDToken(homeAccountID, environment, realm, clientID, idTokenJwt.RawToken)
		if err := m.writeIDToken(idToken); err != nil {
			return shared.Account{}, err
		}

		localAccountID := idTokenJwt.GetLocalAccountID()
		authorityType := authParameters.AuthorityInfo.AuthorityType

		account = shared.NewAccount(
			homeAccountID,
			environment,
			realm,
			localAccountID,
			authorityType,
			idTokenJwt.PreferredUsername,
		)
		if err := m.writeAccount(account); err != nil {
			return shared.Account{}, err
		}
	}

	appMetaData := NewAppMetaData(tokenResponse.FamilyID, clientID, environment)

	if err := m.writeAppMetaData(appMetaData); err != nil {
		return shared.Account{}, err
	}
	return account, nil
}

func (m *Manager) getMetadataEntry(ctx context.Context, authorityInfo authority.Info) (authority.InstanceDiscoveryMetadata, error) {
	// we can't defer m.instanceCacheMu.RUnlock() here
	// as m.instanceMetadata() takes the write lock.
	m.instanceCacheMu.RLock()
	if metadata, ok := m.instanceCache[authorityInfo.Host]; ok {
		m.instanceCacheMu.RUnlock()
		return metadata, nil
	}
	m.instanceCacheMu.RUnlock()
	metadata, err := m.instanceMetadata(ctx, authorityInfo)
	if err != nil {
		return authority.InstanceDiscoveryMetadata{}, err
	}
	return metadata, nil
}

func (m *Manager) instanceMetadata(ctx context.Context, authorityInfo authority.Info) (authority.InstanceDiscoveryMetadata, error) {
	m.instanceCacheMu.Lock()
	defer m.instanceCacheMu.Unlock()
	discoveryResponse, err := m.requests.InstanceDiscovery(ctx, authorityInfo)
	if err != nil {
		return authority.InstanceDiscoveryMetadata{}, err
	}

	for _, metadataEntry := range discoveryResponse.Metadata {
		metadataEntry.TenantDiscoveryEndpoint = discoveryResponse.TenantDiscoveryEndpoint
		for _, aliasedAuthority := range metadataEntry.Aliases {
			m.instanceCache[aliasedAuthority] = metadataEntry
		}
	}
	// A host the service chose not to describe still gets an entry keyed on
	// itself, so later lookups for it do not repeat discovery.
	if _, ok := m.instanceCache[authorityInfo.Host]; !ok {
		m.instanceCache[authorityInfo.Host] = authority.InstanceDiscoveryMetadata{
			PreferredNetwork: authorityInfo.Host,
			PreferredCache:   authorityInfo.Host,
		}
	}
	return m.instanceCache[authorityInfo.Host], nil
}

func (m *Manager) readAccessToken(homeID string, envAliases []string, realm, clientID string, scopes []string) AccessToken {
	// The store is keyed per record, but a read allows a match in multiple
	// environments (envAliases), so we scan the namespace instead of hashing
	// each candidate key. The number of records per app identity is small.
	for _, key := range m.store.Keys(KindAccessToken) {
		var at AccessToken
		if !m.load(KindAccessToken, key, &at) {
			continue
		}
		if at.HomeAccountID == homeID && at.Realm == realm && at.ClientID == clientID {
			if checkAlias(at.Environment, envAliases) {
				if isMatchingScopes(scopes, at.Scopes) {
					return at
				}
			}
		}
	}
	return AccessToken{}
}

func (m *Manager) writeAccessToken(accessToken AccessToken) error {
	return m.save(KindAccessToken, accessToken.Key(), accessToken)
}

func (m *Manager) readRefreshToken(homeID string, envAliases []string, familyID, clientID string) (accesstokens.RefreshToken, error) {
	byFamily := func(rt accesstokens.RefreshToken) bool {
		return matchFamilyRefreshToken(rt, homeID, envAliases)
	}
	byClient := func(rt accesstokens.RefreshToken) bool {
		return matchClientIDRefreshToken(rt, homeID, envAliases, clientID)
	}

	// If the app is part of the family or if we DO NOT KNOW if it's part of
	// the family, search by family ID, then by client ID (we will know if an
	// app is part of the family after the first token response). If the app
	// is not part of the family, search by client ID first.
	var matchers []func(rt accesstokens.RefreshToken) bool
	if familyID == "" {
		matchers = []func(rt accesstokens.RefreshToken) bool{
			byClient, byFamily,
		}
	} else {
		matchers = []func(rt accesstokens.RefreshToken) bool{
			byFamily, byClient,
		}
	}

	for _, matcher := range matchers {
		for _, key := range m.store.Keys(KindRefreshToken) {
			var rt accesstokens.RefreshToken
			if !m.load(KindRefreshToken, key, &rt) {
				continue
			}
			if matcher(rt) {
				return rt, nil
			}
		}
	}

	return accesstokens.RefreshToken{}, fmt.Errorf("refresh token not found")
}

func matchFamilyRefreshToken(rt accesstokens.RefreshToken, homeID string, envAliases []string) bool {
	return rt.HomeAccountID == homeID && checkAlias(rt.Environment, envAliases) && rt.FamilyID != ""
}

func matchClientIDRefreshToken(rt accesstokens.RefreshToken, homeID string, envAliases []string, clientID string) bool {
	return rt.HomeAccountID == homeID && checkAlias(rt.Environment, envAliases) && rt.ClientID == clientID
}

func (m *Manager) writeRefreshToken(refreshToken accesstokens.RefreshToken) error {
	return m.save(KindRefreshToken, refreshToken.Key(), refreshToken)
}

func (m *Manager) readIDToken(homeID string, envAliases []string, realm, clientID string) (IDToken, error) {
	for _, key := range m.store.Keys(KindIDToken) {
		var idt IDToken
		if !m.load(KindIDToken, key, &idt) {
			continue
		}
		if idt.HomeAccountID == homeID && idt.Realm == realm && idt.ClientID == clientID {
			if checkAlias(idt.Environment, envAliases) {
				return idt, nil
			}
		}
	}
	return IDToken{}, fmt.Errorf("token not found")
}

func (m *Manager) writeIDToken(idToken IDToken) error {
	return m.save(KindIDToken, idToken.Key(), idToken)
}

// AllAccounts returns every account in the cache.
func (m *Manager) AllAccounts() []shared.Account {
	var accounts []shared.Account
	for _, key := range m.store.Keys(KindAccount) {
		var acc shared.Account
		if m.load(KindAccount, key, &acc) {
			accounts = append(accounts, acc)
		}
	}
	return accounts
}

// Account returns the account matching the home account ID, or the zero
// Account when none matches.
func (m *Manager) Account(homeAccountID string) shared.Account {
	for _, key := range m.store.Keys(KindAccount) {
		var acc shared.Account
		if m.load(KindAccount, key, &acc) && acc.HomeAccountID == homeAccountID {
			return acc
		}
	}
	return shared.Account{}
}

func (m *Manager) readAccount(homeAccountID string, envAliases []string, realm string) (shared.Account, error) {
	for _, key := range m.store.Keys(KindAccount) {
		var acc shared.Account
		if !m.load(KindAccount, key, &acc) {
			continue
		}
		if acc.HomeAccountID == homeAccountID && checkAlias(acc.Environment, envAliases) && acc.Realm == realm {
			return acc, nil
		}
	}
	return shared.Account{}, fmt.Errorf("account not found")
}

func (m *Manager) writeAccount(account shared.Account) error {
	return m.save(KindAccount, account.Key(), account)
}

func (m *Manager) readAppMetaData(envAliases []string, clientID string) (AppMetaData, error) {
	for _, key := range m.store.Keys(KindAppMetaData) {
		var app AppMetaData
		if !m.load(KindAppMetaData, key, &app) {
			continue
		}
		if checkAlias(app.Environment, envAliases) && app.ClientID == clientID {
			return app, nil
		}
	}
	return AppMetaData{}, fmt.Errorf("not found")
}

func (m *Manager) writeAppMetaData(appMetaData AppMetaData) error {
	return m.save(KindAppMetaData, appMetaData.Key(), appMetaData)
}

// RemoveAccount removes the account and its associated ATs, RTs and IDTs
// from the cache. Refresh tokens are removed only when owned by the given
// client or shared through an app family; records belonging to other
// accounts are never touched.
func (m *Manager) RemoveAccount(account shared.Account, clientID string) {
	m.removeRefreshTokens(account.HomeAccountID, account.Environment, clientID)
	m.removeAccessTokens(account.HomeAccountID, account.Environment)
	m.removeIDTokens(account.HomeAccountID, account.Environment)
	m.removeAccounts(account.HomeAccountID, account.Environment)
}

func (m *Manager) removeRefreshTokens(homeID, env, clientID string) {
	for _, key := range m.store.Keys(KindRefreshToken) {
		var rt accesstokens.RefreshToken
		if !m.load(KindRefreshToken, key, &rt) {
			continue
		}
		// Check for RTs associated with the account.
		if rt.HomeAccountID == homeID && rt.Environment == env {
			// Do the RT's app ownership check as a precaution, in case family
			// apps and 3rd-party apps share the same token cache, although
			// they should not.
			if rt.ClientID == clientID || rt.FamilyID != "" {
				m.store.Delete(KindRefreshToken, key)
			}
		}
	}
}

func (m *Manager) removeAccessTokens(homeID, env string) {
	for _, key := range m.store.Keys(KindAccessToken) {
		var at AccessToken
		if !m.load(KindAccessToken, key, &at) {
			continue
		}
		// To avoid the complexity of locating a sibling family app's AT, we
		// skip the AT's app ownership check. ATs for other apps in the family
		// are removed too; their RTs are kept, so sign-in state survives.
		if at.HomeAccountID == homeID && at.Environment == env {
			m.store.Delete(KindAccessToken, key)
		}
	}
}

func (m *Manager) removeIDTokens(homeID, env string) {
	for _, key := range m.store.Keys(KindIDToken) {
		var idt IDToken
		if !m.load(KindIDToken, key, &idt) {
			continue
		}
		if idt.HomeAccountID == homeID && idt.Environment == env {
			m.store.Delete(KindIDToken, key)
		}
	}
}

func (m *Manager) removeAccounts(homeID, env string) {
	for _, key := range m.store.Keys(KindAccount) {
		var acc shared.Account
		if !m.load(KindAccount, key, &acc) {
			continue
		}
		if acc.HomeAccountID == homeID && acc.Environment == env {
			m.store.Delete(KindAccount, key)
		}
	}
}

// update replaces everything in the store with the contract's records.
func (m *Manager) update(contract *Contract) error {
	for _, kind := range kinds {
		for _, key := range m.store.Keys(kind) {
			m.store.Delete(kind, key)
		}
	}
	for k, v := range contract.AccessTokens {
		if err := m.save(KindAccessToken, k, v); err != nil {
			return err
		}
	}
	for k, v := range contract.RefreshTokens {
		if err := m.save(KindRefreshToken, k, v); err != nil {
			return err
		}
	}
	for k, v := range contract.IDTokens {
		if err := m.save(KindIDToken, k, v); err != nil {
			return err
		}
	}
	for k, v := range contract.Accounts {
		if err := m.save(KindAccount, k, v); err != nil {
			return err
		}
	}
	for k, v := range contract.AppMetaData {
		if err := m.save(KindAppMetaData, k, v); err != nil {
			return err
		}
	}
	m.extraMu.Lock()
	m.extra = contract.AdditionalFields
	m.extraMu.Unlock()
	return nil
}

// snapshot assembles the serialization contract from the store's records.
func (m *Manager) snapshot() *Contract {
	contract := NewContract()
	for _, key := range m.store.Keys(KindAccessToken) {
		var at AccessToken
		if m.load(KindAccessToken, key, &at) {
			contract.AccessTokens[key] = at
		}
	}
	for _, key := range m.store.Keys(KindRefreshToken) {
		var rt accesstokens.RefreshToken
		if m.load(KindRefreshToken, key, &rt) {
			contract.RefreshTokens[key] = rt
		}
	}
	for _, key := range m.store.Keys(KindIDToken) {
		var idt IDToken
		if m.load(KindIDToken, key, &idt) {
			contract.IDTokens[key] = idt
		}
	}
	for _, key := range m.store.Keys(KindAccount) {
		var acc shared.Account
		if m.load(KindAccount, key, &acc) {
			contract.Accounts[key] = acc
		}
	}
	for _, key := range m.store.Keys(KindAppMetaData) {
		var app AppMetaData
		if m.load(KindAppMetaData, key, &app) {
			contract.AppMetaData[key] = app
		}
	}
	m.extraMu.RLock()
	for k, v := range m.extra {
		contract.AdditionalFields[k] = v
	}
	m.extraMu.RUnlock()
	return contract
}

// Marshal implements cache.Marshaler.
func (m *Manager) Marshal() ([]byte, error) {
	return json.Marshal(m.snapshot())
}

// Unmarshal implements cache.Unmarshaler.
func (m *Manager) Unmarshal(b []byte) error {
	contract := NewContract()

	if err := json.Unmarshal(b, contract); err != nil {
		return err
	}
	return m.update(contract)
}
