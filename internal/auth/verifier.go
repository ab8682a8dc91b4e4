package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"nimbus/internal/constants"
	"nimbus/internal/logger"
)

// SignatureVerifier recomputes a request's SigV4 signature through the
// delegated signer and compares it to the one the client supplied.
type SignatureVerifier struct {
	signer Signer
	logger *logger.Logger
}

// NewSignatureVerifier creates a verifier around the given signer.
func NewSignatureVerifier(signer Signer, log *logger.Logger) *SignatureVerifier {
	return &SignatureVerifier{signer: signer, logger: log}
}

// Verify recomputes the signature for req using the principal's credentials
// and compares it byte for byte with the Signature= component of the
// Authorization header. Returns ErrSignatureMismatch on difference; any
// other error means the signing inputs could not be assembled.
func (v *SignatureVerifier) Verify(ctx context.Context, req *Request, scope CredentialScope, creds Credentials) error {
	authHeader := req.Headers.Get(constants.HeaderAuthorization)

	supplied := stringBetween(constants.AuthSignatureMarker, ",", authHeader)
	if supplied == "" {
		return fmt.Errorf("authorization header carries no signature")
	}

	signedHeaders := stringBetween(constants.AuthSignedHeadersMarker, ",", authHeader)
	if signedHeaders == "" {
		return fmt.Errorf("authorization header carries no signed-headers list")
	}

	restricted := restrictHeaders(req.Headers, strings.Split(signedHeaders, ";"))

	// The signing timestamp is part of the signed material; the client must
	// have sent it in a signed X-Amz-Date header.
	amzDate := restricted.Get(constants.HeaderAmzDate)
	signingTime, err := time.Parse(constants.AmzDateFormat, amzDate)
	if err != nil {
		return fmt.Errorf("invalid or missing %s header: %w", constants.HeaderAmzDate, err)
	}

	host := req.Host
	if h := restricted.Get(constants.HeaderHost); h != "" {
		host = h
	}

	expected, err := v.signer.Sign(ctx, creds, scope, &SigningRequest{
		Method:  req.Method,
		Path:    req.Path,
		Host:    host,
		Body:    req.Body,
		Headers: restricted,
		Time:    signingTime,
	})
	if err != nil {
		return err
	}

	if expected != supplied {
		v.logger.Debug("Signature mismatch for key %s: supplied=%s computed=%s",
			scope.AccessKeyID, supplied, expected)
		return ErrSignatureMismatch
	}
	return nil
}

// restrictHeaders copies only the headers named in the SignedHeaders list,
// matching header names case-insensitively.
func restrictHeaders(headers http.Header, signedNames []string) http.Header {
	signed := make(map[string]bool, len(signedNames))
	for _, name := range signedNames {
		signed[strings.ToLower(strings.TrimSpace(name))] = true
	}

	restricted := make(http.Header)
	for name, values := range headers {
		if !signed[strings.ToLower(name)] {
			continue
		}
		for _, v := range values {
			restricted.Add(name, v)
		}
	}
	return restricted
}
