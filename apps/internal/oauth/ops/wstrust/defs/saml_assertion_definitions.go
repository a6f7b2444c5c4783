// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

package defs

import "encoding/xml"

// SAMLDefinitions is the decoded SOAP envelope a WS-Trust token issuance
// returns. The assertion itself is kept as raw XML because it is passed to
// the token endpoint untouched.
type SAMLDefinitions struct {
	XMLName xml.Name `xml:"Envelope"`
	Text    string   `xml:",chardata"`
	Header  Header   `xml:"Header"`
	Body    Body     `xml:"Body"`
}

type Header struct {
	Text     string   `xml:",chardata"`
	Action   Action   `xml:"Action"`
	Security Security `xml:"Security"`
}

type Action struct {
	Text           string `xml:",chardata"`
	MustUnderstand string `xml:"mustUnderstand,attr"`
}

type Security struct {
	Text           string    `xml:",chardata"`
	MustUnderstand string    `xml:"mustUnderstand,attr"`
	Timestamp      Timestamp `xml:"Timestamp"`
}

type Timestamp struct {
	Text    string `xml:",chardata"`
	ID      string `xml:"Id,attr"`
	Created Text   `xml:"Created"`
	Expires Text   `xml:"Expires"`
}

type Text struct {
	Text string `xml:",chardata"`
}

type Body struct {
	Text                                   string                                 `xml:",chardata"`
	RequestSecurityTokenResponseCollection RequestSecurityTokenResponseCollection `xml:"RequestSecurityTokenResponseCollection"`
}

type RequestSecurityTokenResponseCollection struct {
	Text                         string                         `xml:",chardata"`
	RequestSecurityTokenResponse []RequestSecurityTokenResponse `xml:"RequestSecurityTokenResponse"`
}

type RequestSecurityTokenResponse struct {
	Text                       string                     `xml:",chardata"`
	Lifetime                   Lifetime                   `xml:"Lifetime"`
	AppliesTo                  AppliesTo                  `xml:"AppliesTo"`
	RequestedSecurityToken     RequestedSecurityToken     `xml:"RequestedSecurityToken"`
	RequestedAttachedReference RequestedAttachedReference `xml:"RequestedAttachedReference"`
	TokenType                  Text                       `xml:"TokenType"`
	RequestType                Text                       `xml:"RequestType"`
	KeyType                    Text                       `xml:"KeyType"`
}

type Lifetime struct {
	Text    string `xml:",chardata"`
	Created Text   `xml:"Created"`
	Expires Text   `xml:"Expires"`
}

type AppliesTo struct {
	Text              string            `xml:",chardata"`
	EndpointReference EndpointReference `xml:"EndpointReference"`
}

type RequestedSecurityToken struct {
	Text            string    `xml:",chardata"`
	AssertionRawXML string    `xml:",innerxml"`
	Assertion       Assertion `xml:"Assertion"`
}

type Assertion struct {
	XMLName      xml.Name
	Text         string `xml:",chardata"`
	MajorVersion string `xml:"MajorVersion,attr"`
	MinorVersion string `xml:"MinorVersion,attr"`
	AssertionID  string `xml:"AssertionID,attr"`
	Issuer       string `xml:"Issuer,attr"`
	IssueInstant string `xml:"IssueInstant,attr"`
	Saml         string `xml:"saml,attr"`
}

type RequestedAttachedReference struct {
	Text                   string                 `xml:",chardata"`
	SecurityTokenReference SecurityTokenReference `xml:"SecurityTokenReference"`
}

type SecurityTokenReference struct {
	Text          string `xml:",chardata"`
	TokenType     string `xml:"TokenType,attr"`
	KeyIdentifier struct {
		Text      string `xml:",chardata"`
		ValueType string `xml:"ValueType,attr"`
	} `xml:"KeyIdentifier"`
}
