// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

package defs

import (
	"errors"
	"fmt"
	"strings"
)

type wsEndpointType int

const (
	wsEndpointTypeUsernamePassword wsEndpointType = iota
	wsEndpointTypeWindowsTransport
)

type wsEndpointData struct {
	Version      Version
	EndpointType wsEndpointType
}

// MexDocument holds the endpoints discovered from a MEX (metadata exchange)
// document, keyed by the kind of credential they accept.
type MexDocument struct {
	UsernamePasswordEndpoint Endpoint
	WindowsTransportEndpoint Endpoint

	policies map[string]wsEndpointType
	bindings map[string]wsEndpointData
}

func updateEndpoint(cached *Endpoint, found Endpoint) {
	if cached == nil || cached.Version == TrustUnknown {
		*cached = found
		return
	}
	if (*cached).Version == Trust2005 && found.Version == Trust13 {
		*cached = found
		return
	}
}

// NewFromDef creates a new MexDocument from the decoded WSDL definitions. It
// maps policies to bindings to ports, preferring Trust13 endpoints over
// Trust2005 when a credential type is served by both.
func NewFromDef(defs Definitions) (MexDocument, error) {
	policies, err := policies(defs)
	if err != nil {
		return MexDocument{}, err
	}

	bindings, err := bindings(defs, policies)
	if err != nil {
		return MexDocument{}, err
	}

	userPass, windows, err := endpoints(defs, bindings)
	if err != nil {
		return MexDocument{}, err
	}

	return MexDocument{
		UsernamePasswordEndpoint: userPass,
		WindowsTransportEndpoint: windows,
		policies:                 policies,
		bindings:                 bindings,
	}, nil
}

func policies(defs Definitions) (map[string]wsEndpointType, error) {
	policies := make(map[string]wsEndpointType, len(defs.Policy))

	for _, policy := range defs.Policy {
		if policy.ExactlyOne.All.NegotiateAuthentication.XMLName.Local != "" {
			if policy.ID == "" {
				return nil, fmt.Errorf("policy contains a NegotiateAuthentication with no ID")
			}
			policies["#"+policy.ID] = wsEndpointTypeWindowsTransport
		}

		if policy.ExactlyOne.All.SignedEncryptedSupportingTokens.Policy.UsernameToken.Policy.WssUsernameToken10.XMLName.Local != "" {
			if policy.ID == "" {
				return nil, fmt.Errorf("policy contains a SignedEncryptedSupportingTokens with no ID")
			}
			policies["#"+policy.ID] = wsEndpointTypeUsernamePassword
		}

		if policy.ExactlyOne.All.SignedSupportingTokens.Policy.UsernameToken.Policy.WssUsernameToken10.XMLName.Local != "" {
			if policy.ID == "" {
				return nil, fmt.Errorf("policy contains a SignedSupportingTokens with no ID")
			}
			policies["#"+policy.ID] = wsEndpointTypeUsernamePassword
		}
	}

	if len(policies) == 0 {
		return nil, errors.New("no policies for mex document")
	}

	return policies, nil
}

func bindings(defs Definitions, policies map[string]wsEndpointType) (map[string]wsEndpointData, error) {
	bindings := make(map[string]wsEndpointData, len(defs.Binding))

	for _, binding := range defs.Binding {
		policyName := binding.PolicyReference.URI
		transport := binding.Binding.Transport

		if transport != "http://schemas.xmlsoap.org/soap/http" {
			continue
		}

		policy, ok := policies[policyName]
		if !ok {
			continue
		}

		bindingName := binding.Name
		specVersion := binding.Operation.Operation.SoapAction

		switch specVersion {
		case trust13Spec:
			bindings[bindingName] = wsEndpointData{Trust13, policy}
		case trust2005Spec:
			bindings[bindingName] = wsEndpointData{Trust2005, policy}
		default:
			return nil, errors.New("found unknown spec version in mex document")
		}
	}
	return bindings, nil
}

func endpoints(defs Definitions, bindings map[string]wsEndpointData) (userPass, windows Endpoint, err error) {
	for _, port := range defs.Service.Port {
		bindingName := port.Binding

		index := strings.Index(bindingName, ":")
		if index != -1 {
			bindingName = bindingName[index+1:]
		}

		binding, ok := bindings[bindingName]
		if !ok {
			continue
		}

		url := strings.TrimSpace(port.EndpointReference.Address.Text)
		if url == "" {
			return Endpoint{}, Endpoint{}, fmt.Errorf("mex document ws-trust endpoint had no address")
		}

		endpoint := Endpoint{Version: binding.Version, URL: url}

		switch binding.EndpointType {
		case wsEndpointTypeUsernamePassword:
			updateEndpoint(&userPass, endpoint)
		case wsEndpointTypeWindowsTransport:
			updateEndpoint(&windows, endpoint)
		default:
			return Endpoint{}, Endpoint{}, errors.New("found unknown port type in MEX document")
		}
	}
	return userPass, windows, nil
}
