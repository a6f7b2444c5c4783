// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

package defs

import "encoding/xml"

// Definitions is the decoded form of a WSDL MEX document. Only the parts the
// endpoint discovery walks are modeled; everything else is ignored by the
// XML decoder.
type Definitions struct {
	XMLName         xml.Name  `xml:"definitions"`
	Text            string    `xml:",chardata"`
	Name            string    `xml:"name,attr"`
	TargetNamespace string    `xml:"targetNamespace,attr"`
	Types           Types     `xml:"types"`
	Message         []Message `xml:"message"`
	PortType        []struct {
		Text      string `xml:",chardata"`
		Name      string `xml:"name,attr"`
		Operation struct {
			Text  string `xml:",chardata"`
			Name  string `xml:"name,attr"`
			Input struct {
				Text    string `xml:",chardata"`
				Action  string `xml:"Action,attr"`
				Message string `xml:"message,attr"`
			} `xml:"input"`
			Output struct {
				Text    string `xml:",chardata"`
				Action  string `xml:"Action,attr"`
				Message string `xml:"message,attr"`
			} `xml:"output"`
		} `xml:"operation"`
	} `xml:"portType"`
	Binding []Binding `xml:"binding"`
	Service Service   `xml:"service"`
	Policy  []Policy  `xml:"Policy"`
}

type Types struct {
	Text   string `xml:",chardata"`
	Schema struct {
		Text   string `xml:",chardata"`
		Import []struct {
			Text      string `xml:",chardata"`
			Namespace string `xml:"namespace,attr"`
		} `xml:"import"`
	} `xml:"schema"`
}

type Message struct {
	Text string `xml:",chardata"`
	Name string `xml:"name,attr"`
	Part struct {
		Text    string `xml:",chardata"`
		Name    string `xml:"name,attr"`
		Element string `xml:"element,attr"`
	} `xml:"part"`
}

type Binding struct {
	Text            string             `xml:",chardata"`
	Name            string             `xml:"name,attr"`
	Type            string             `xml:"type,attr"`
	PolicyReference PolicyReference    `xml:"PolicyReference"`
	Binding         DefinitionsBinding `xml:"binding"`
	Operation       BindingOperation   `xml:"operation"`
}

type PolicyReference struct {
	Text string `xml:",chardata"`
	URI  string `xml:"URI,attr"`
}

type DefinitionsBinding struct {
	Text      string `xml:",chardata"`
	Transport string `xml:"transport,attr"`
}

type BindingOperation struct {
	Text      string             `xml:",chardata"`
	Name      string             `xml:"name,attr"`
	Operation OperationOperation `xml:"operation"`
	Input     struct {
		Text string `xml:",chardata"`
		Body struct {
			Text string `xml:",chardata"`
			Use  string `xml:"use,attr"`
		} `xml:"body"`
	} `xml:"input"`
	Output struct {
		Text string `xml:",chardata"`
		Body struct {
			Text string `xml:",chardata"`
			Use  string `xml:"use,attr"`
		} `xml:"body"`
	} `xml:"output"`
}

type OperationOperation struct {
	Text       string `xml:",chardata"`
	SoapAction string `xml:"soapAction,attr"`
	Style      string `xml:"style,attr"`
}

type Service struct {
	Text string `xml:",chardata"`
	Name string `xml:"name,attr"`
	Port []Port `xml:"port"`
}

type Port struct {
	Text              string            `xml:",chardata"`
	Name              string            `xml:"name,attr"`
	Binding           string            `xml:"binding,attr"`
	Address           Address           `xml:"address"`
	EndpointReference EndpointReference `xml:"EndpointReference"`
}

type Address struct {
	Text     string `xml:",chardata"`
	Location string `xml:"location,attr"`
}

type EndpointReference struct {
	Text    string         `xml:",chardata"`
	Address AddressElement `xml:"Address"`
}

type AddressElement struct {
	Text string `xml:",chardata"`
}

type Policy struct {
	Text       string     `xml:",chardata"`
	ID         string     `xml:"Id,attr"`
	ExactlyOne ExactlyOne `xml:"ExactlyOne"`
}

type ExactlyOne struct {
	Text string `xml:",chardata"`
	All  All    `xml:"All"`
}

type All struct {
	Text                            string                          `xml:",chardata"`
	NegotiateAuthentication         NegotiateAuthentication         `xml:"NegotiateAuthentication"`
	TransportBinding                TransportBinding                `xml:"TransportBinding"`
	SignedEncryptedSupportingTokens SignedEncryptedSupportingTokens `xml:"SignedEncryptedSupportingTokens"`
	SignedSupportingTokens          SignedSupportingTokens          `xml:"SignedSupportingTokens"`
}

type NegotiateAuthentication struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}

type TransportBinding struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}

type SignedEncryptedSupportingTokens struct {
	Text   string              `xml:",chardata"`
	Policy SupportingTokPolicy `xml:"Policy"`
}

type SignedSupportingTokens struct {
	Text   string              `xml:",chardata"`
	Policy SupportingTokPolicy `xml:"Policy"`
}

type SupportingTokPolicy struct {
	Text          string        `xml:",chardata"`
	UsernameToken UsernameToken `xml:"UsernameToken"`
}

type UsernameToken struct {
	Text   string      `xml:",chardata"`
	Policy TokenPolicy `xml:"Policy"`
}

type TokenPolicy struct {
	Text               string             `xml:",chardata"`
	WssUsernameToken10 WssUsernameToken10 `xml:"WssUsernameToken10"`
}

type WssUsernameToken10 struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}
