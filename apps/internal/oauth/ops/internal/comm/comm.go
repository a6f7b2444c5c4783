// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

// Package comm provides the HTTP client all REST calls to the token service
// go through. It centralizes the request identification headers, the single
// retry on transient failures and the device auth (PKeyAuth) challenge
// handshake, so the packages above it only deal in typed payloads.
package comm

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"encoding/xml"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/dirid/directory-authentication-library-for-go/apps/errors"
	customJSON "github.com/dirid/directory-authentication-library-for-go/apps/internal/json"
	"github.com/dirid/directory-authentication-library-for-go/apps/internal/version"
	"github.com/google/uuid"
)

// HTTPClient represents an HTTP client.
// It's usually an *http.Client from the standard library.
type HTTPClient interface {
	// Do sends the HTTP request.
	Do(req *http.Request) (*http.Response, error)

	// CloseIdleConnections closes any idle connections in a "keep-alive" state.
	CloseIdleConnections()
}

// ChallengeSigner answers a device auth challenge by signing its fields with
// the device credential. Implementations may perform I/O (keystore access,
// TPM operations) and must honor ctx.
type ChallengeSigner interface {
	// CreateChallengeResponse returns the Authorization header value for the
	// replayed request. fields holds the parsed challenge parameters
	// (Nonce, Context, Version, CertAuthorities, SubmitUrl...).
	CreateChallengeResponse(ctx context.Context, fields map[string]string) (string, error)
}

const (
	// challengeScheme starts the WWW-Authenticate value of a device auth challenge.
	challengeScheme = "PKeyAuth"
	// deviceAuthHeader advertises to the service that we can answer a
	// PKeyAuth challenge. Sent on every request.
	deviceAuthHeader      = "x-ms-PKeyAuth"
	deviceAuthHeaderValue = "1.0"
)

// retryDelay is how long we wait before the single retry of a request that
// timed out or was answered with a 5xx. Tests shorten it.
var retryDelay = 1000 * time.Millisecond

// testID sets the client-request-id header to a fixed value in tests. An
// empty string generates a fresh UUID per request, which is what production
// always does.
var testID string

// Client provides a wrapper to our *http.Client that handles compression and serialization needs.
type Client struct {
	client HTTPClient
	signer ChallengeSigner
}

// New returns a new Client object.
func New(httpClient HTTPClient) *Client {
	if httpClient == nil {
		panic("http.Client cannot == nil")
	}
	return &Client{client: httpClient}
}

// NewWithSigner returns a Client that can answer device auth challenges with
// the given signer. A nil signer acknowledges challenges unsigned, which
// lets the service fall back to another auth method.
func NewWithSigner(httpClient HTTPClient, signer ChallengeSigner) *Client {
	c := New(httpClient)
	c.signer = signer
	return c
}

// JSONCall connects to the REST endpoint passing the HTTP query values, headers and JSON conversion
// of body in the HTTP body. It automatically handles compression and decompression with gzip. The response is JSON
// unmarshalled into resp. resp must be a pointer to a struct. If the body struct contains a field called
// "AdditionalFields" we use a custom marshal/unmarshal engine.
func (c *Client) JSONCall(ctx context.Context, endpoint string, headers http.Header, qv url.Values, body, resp interface{}) error {
	if qv == nil {
		qv = url.Values{}
	}

	v := reflect.ValueOf(resp)
	if err := c.checkResp(v); err != nil {
		return err
	}

	// Choose a JSON marshal/unmarshal depending on if we have AdditionalFields attribute.
	var marshal = json.Marshal
	var unmarshal = json.Unmarshal
	if _, ok := v.Elem().Type().FieldByName("AdditionalFields"); ok {
		marshal = customJSON.Marshal
		unmarshal = customJSON.Unmarshal
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("could not parse path URL(%s): %w", endpoint, err)
	}
	u.RawQuery = qv.Encode()

	addStdHeaders(headers)

	method := http.MethodGet
	var data []byte
	if body != nil {
		method = http.MethodPost
		headers.Set("Content-Type", "application/json; charset=utf-8")
		data, err = marshal(body)
		if err != nil {
			return fmt.Errorf("bug: conn.Call(): could not marshal the body object: %w", err)
		}
	}

	reply, err := c.do(ctx, method, u.String(), headers, data)
	if err != nil {
		return err
	}

	if resp != nil {
		if err := unmarshal(reply, resp); err != nil {
			return fmt.Errorf("json decode error: %w\njson message bytes were: %s", err, string(reply))
		}
	}
	return nil
}

// XMLCall connects to an endpoint and decodes the XML response into resp. This is used when
// sending application/xml . If sending XML via SOAP, use SOAPCall().
func (c *Client) XMLCall(ctx context.Context, endpoint string, headers http.Header, qv url.Values, resp interface{}) error {
	if err := c.checkResp(reflect.ValueOf(resp)); err != nil {
		return err
	}

	if qv == nil {
		qv = url.Values{}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("could not parse path URL(%s): %w", endpoint, err)
	}
	u.RawQuery = qv.Encode()

	headers.Set("Content-Type", "application/xml; charset=utf-8") // This was not set in he original Mex(we should set it, but could break possibly)
	addStdHeaders(headers)

	return c.xmlCall(ctx, u, headers, "", resp)
}

// SOAPCall returns the SOAP payload queried from the endpoint. This is always a POST request.
func (c *Client) SOAPCall(ctx context.Context, endpoint, action string, headers http.Header, qv url.Values, body string, resp interface{}) error {
	if body == "" {
		return fmt.Errorf("cannot make a SOAP call with body set to empty string")
	}

	if err := c.checkResp(reflect.ValueOf(resp)); err != nil {
		return err
	}

	if qv == nil {
		qv = url.Values{}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("could not parse path URL(%s): %w", endpoint, err)
	}
	u.RawQuery = qv.Encode()

	headers.Set("Content-Type", "application/soap+xml; charset=utf-8")
	headers.Set("SOAPAction", action)
	addStdHeaders(headers)

	return c.xmlCall(ctx, u, headers, body, resp)
}

// xmlCall sends an XML in body and decodes into resp. This simply does the transport and relies on
// an upper level to set things such as SOAP parameters and Content-type.
func (c *Client) xmlCall(ctx context.Context, u *url.URL, headers http.Header, body string, resp interface{}) error {
	method := http.MethodGet
	var data []byte
	if len(body) > 0 {
		method = http.MethodPost
		data = []byte(body)
	}

	reply, err := c.do(ctx, method, u.String(), headers, data)
	if err != nil {
		return err
	}

	return xml.Unmarshal(reply, resp)
}

// URLFormCall sends a POST request of url form encoded values and decodes the JSON response
// into resp, which must be a pointer to a struct.
func (c *Client) URLFormCall(ctx context.Context, endpoint string, qv url.Values, resp interface{}) error {
	if len(qv) == 0 {
		return fmt.Errorf("URLFormCall() requires qv to have non-zero length")
	}

	if err := c.checkResp(reflect.ValueOf(resp)); err != nil {
		return err
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("could not parse path URL(%s): %w", endpoint, err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	addStdHeaders(headers)

	enc := qv.Encode()

	reply, err := c.do(ctx, http.MethodPost, u.String(), headers, []byte(enc))
	if err != nil {
		return err
	}

	if resp != nil {
		var unmarshal = json.Unmarshal
		if _, ok := reflect.TypeOf(resp).Elem().FieldByName("AdditionalFields"); ok {
			unmarshal = customJSON.Unmarshal
		}
		if err := unmarshal(reply, resp); err != nil {
			return fmt.Errorf("json decode error: %w\nraw message was: %s", err, string(reply))
		}
	}
	return nil
}

// do sends an HTTP request and returns the body of a 2xx reply. It is the
// bounded state machine the resiliency rules live in: at most one retry on a
// transport timeout or 5xx, and at most one replay to answer a device auth
// challenge. Each attempt builds a fresh request; nothing is shared between
// attempts except the headers map, which is mutated in place.
func (c *Client) do(ctx context.Context, method, endpoint string, headers http.Header, body []byte) ([]byte, error) {
	retried := false
	challenged := false

	for {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("could not create request: %w", err)
		}
		req.Header = headers

		reply, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				// The caller gave up, their error wins over ours.
				return nil, ctx.Err()
			}
			if !isTimeout(err) {
				return nil, errors.CallErr{Req: req, Err: fmt.Errorf("server response error: %w", err)}
			}
			if retried {
				return nil, errors.CallErr{Req: req, Err: fmt.Errorf("server did not respond within the timeout, even after a retry: %w", err)}
			}
			retried = true
			if err := c.pauseForRetry(ctx); err != nil {
				return nil, err
			}
			continue
		}

		data, err := readBody(reply)
		reply.Body.Close()
		if err != nil {
			return nil, errors.CallErr{Req: req, Resp: reply, Err: fmt.Errorf("could not read the body of an HTTP Response: %w", err)}
		}

		switch {
		case reply.StatusCode >= 200 && reply.StatusCode <= 299:
			return data, nil
		case reply.StatusCode >= 500 && reply.StatusCode <= 599:
			if retried {
				return nil, serviceErr(req, reply, data)
			}
			retried = true
			if err := c.pauseForRetry(ctx); err != nil {
				return nil, err
			}
			continue
		case reply.StatusCode == http.StatusUnauthorized && !challenged:
			fields, ok := parseChallenge(reply.Header.Get("WWW-Authenticate"))
			if !ok {
				return nil, serviceErr(req, reply, data)
			}
			// Answer the challenge once. A second 401 on the replay is
			// terminal, never another handshake.
			challenged = true
			auth, err := c.answerChallenge(ctx, fields)
			if err != nil {
				return nil, errors.CallErr{Req: req, Resp: reply, Err: fmt.Errorf("could not answer device auth challenge: %w", err)}
			}
			headers.Set("Authorization", auth)
			if submit := fields["SubmitUrl"]; submit != "" {
				endpoint = submit
			}
			continue
		default:
			return nil, serviceErr(req, reply, data)
		}
	}
}

// pauseForRetry waits the retry delay, giving up early if the caller cancels.
func (c *Client) pauseForRetry(ctx context.Context) error {
	// Don't reuse a connection the server just failed us on.
	c.client.CloseIdleConnections()

	t := time.NewTimer(retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) answerChallenge(ctx context.Context, fields map[string]string) (string, error) {
	if c.signer != nil {
		return c.signer.CreateChallengeResponse(ctx, fields)
	}
	// No device credential available. Echo the challenge context back
	// unsigned so the service can fall back to another auth method.
	return fmt.Sprintf(`%s Context="%s", Version="%s"`, challengeScheme, fields["Context"], fields["Version"]), nil
}

// parseChallenge reports whether header is a device auth challenge and
// returns its comma separated key="value" fields.
func parseChallenge(header string) (map[string]string, bool) {
	header = strings.TrimSpace(header)
	if header != challengeScheme && !strings.HasPrefix(header, challengeScheme+" ") {
		return nil, false
	}

	fields := map[string]string{}
	for _, pair := range strings.Split(header[len(challengeScheme):], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		if k != "" {
			fields[k] = v
		}
	}
	return fields, true
}

// serviceErr converts a non-2xx reply into a CallErr wrapping a ServiceErr.
// A reply that is not the structured OAuth error envelope still yields a
// ServiceErr, just without code fields.
func serviceErr(req *http.Request, reply *http.Response, data []byte) error {
	se := &errors.ServiceErr{StatusCode: reply.StatusCode}

	payload := struct {
		Error            string `json:"error"`
		SubError         string `json:"suberror"`
		ErrorDescription string `json:"error_description"`
		ErrorCodes       []int  `json:"error_codes"`
		CorrelationID    string `json:"correlation_id"`
		Claims           string `json:"claims"`
	}{}
	if err := json.Unmarshal(data, &payload); err == nil {
		se.Code = payload.Error
		se.SubError = payload.SubError
		se.Description = payload.ErrorDescription
		se.ErrorCodes = payload.ErrorCodes
		se.CorrelationID = payload.CorrelationID
		se.Claims = payload.Claims
	}
	if se.Code == "" {
		se.Code = "unknown_error"
		se.Description = fmt.Sprintf("http call(%s)(%s) error: reply status code was %d:\n%s", req.URL.String(), req.Method, reply.StatusCode, string(data))
	}
	return errors.CallErr{Req: req, Resp: reply, Err: se}
}

// readBody reads the HTTP body, dealing with any content encodings we advertise.
func readBody(reply *http.Response) ([]byte, error) {
	var reader io.Reader = reply.Body
	if reply.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(reply.Body)
		if err != nil {
			return nil, fmt.Errorf("could not create gzip decompressor: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(reader)
}

// isTimeout reports whether err represents the transport giving up, as
// opposed to a hard failure like a connection refused.
func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return stderrors.As(err, &ne) && ne.Timeout()
}

func (c *Client) checkResp(v reflect.Value) error {
	if v.Kind() != reflect.Ptr {
		return fmt.Errorf("bug: resp argument must a *struct, was %T", v.Interface())
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("bug: resp argument must be a *struct, was %T", v.Interface())
	}
	return nil
}

// addStdHeaders adds the standard headers required on every call.
func addStdHeaders(headers http.Header) http.Header {
	headers.Set("Accept-Encoding", "gzip")
	// So that I can have a static id for tests.
	if testID != "" {
		headers.Set("client-request-id", testID)
		headers.Set("Return-Client-Request-Id", "false")
	} else {
		headers.Set("client-request-id", uuid.New().String())
		headers.Set("Return-Client-Request-Id", "false")
	}
	headers.Set("x-client-sku", "dal.go")
	headers.Set("x-client-os", runtime.GOOS)
	headers.Set("x-client-cpu", runtime.GOARCH)
	headers.Set("x-client-ver", version.Version)
	headers.Set(deviceAuthHeader, deviceAuthHeaderValue)
	return headers
}
