package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"nimbus/internal/constants"
	"nimbus/internal/logger"
)

var testSigningTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// signTestRequest computes the signature a real client would send and stamps
// a full SigV4 Authorization header onto the request.
func signTestRequest(t *testing.T, signer Signer, req *Request, creds Credentials, scope CredentialScope) {
	t.Helper()

	req.Headers.Set(constants.HeaderHost, req.Host)
	req.Headers.Set(constants.HeaderAmzDate, testSigningTime.Format(constants.AmzDateFormat))
	signedHeaders := "host;x-amz-date"
	if creds.SessionToken != "" {
		req.Headers.Set(constants.HeaderAmzSecurityToken, creds.SessionToken)
		signedHeaders += ";x-amz-security-token"
	}

	signature, err := signer.Sign(context.Background(), creds, scope, &SigningRequest{
		Method:  req.Method,
		Path:    req.Path,
		Host:    req.Host,
		Body:    req.Body,
		Headers: req.Headers,
		Time:    testSigningTime,
	})
	if err != nil {
		t.Fatalf("failed to sign test request: %v", err)
	}

	req.Headers.Set(constants.HeaderAuthorization, fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s/%s/%s/aws4_request, SignedHeaders=%s, Signature=%s",
		creds.AccessKeyID, scope.Date, scope.Region, scope.Service, signedHeaders, signature))
}

func newTestRequest(body string) *Request {
	return &Request{
		Method:  http.MethodPost,
		Path:    "/",
		Body:    []byte(body),
		Params:  url.Values{},
		Headers: http.Header{},
		Host:    "localhost:5000",
	}
}

func TestVerifyAcceptsCorrectSignature(t *testing.T) {
	signer := NewSigV4Signer()
	verifier := NewSignatureVerifier(signer, logger.NewLogger(logger.LevelError))

	creds := Credentials{AccessKeyID: "AKIATEST00000000001", SecretAccessKey: "secret"}
	scope := CredentialScope{
		AccessKeyID: creds.AccessKeyID,
		Date:        testSigningTime.Format("20060102"),
		Region:      "us-east-1",
		Service:     constants.ServiceIAM,
	}

	req := newTestRequest("Action=ListUsers&Version=2010-05-08")
	signTestRequest(t, signer, req, creds, scope)

	if err := verifier.Verify(context.Background(), req, scope, creds); err != nil {
		t.Fatalf("expected valid signature to verify: %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	signer := NewSigV4Signer()
	verifier := NewSignatureVerifier(signer, logger.NewLogger(logger.LevelError))

	creds := Credentials{AccessKeyID: "AKIATEST00000000001", SecretAccessKey: "secret"}
	scope := CredentialScope{
		AccessKeyID: creds.AccessKeyID,
		Date:        testSigningTime.Format("20060102"),
		Region:      "us-east-1",
		Service:     constants.ServiceIAM,
	}

	req := newTestRequest("Action=ListUsers&Version=2010-05-08")
	signTestRequest(t, signer, req, creds, scope)
	req.Body = []byte("Action=CreateUser&UserName=mallory")

	if err := verifier.Verify(context.Background(), req, scope, creds); err != ErrSignatureMismatch {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer := NewSigV4Signer()
	verifier := NewSignatureVerifier(signer, logger.NewLogger(logger.LevelError))

	creds := Credentials{AccessKeyID: "AKIATEST00000000001", SecretAccessKey: "secret"}
	scope := CredentialScope{
		AccessKeyID: creds.AccessKeyID,
		Date:        testSigningTime.Format("20060102"),
		Region:      "us-east-1",
		Service:     constants.ServiceIAM,
	}

	req := newTestRequest("Action=ListUsers&Version=2010-05-08")
	signTestRequest(t, signer, req, creds, scope)

	wrong := Credentials{AccessKeyID: creds.AccessKeyID, SecretAccessKey: "other-secret"}
	if err := verifier.Verify(context.Background(), req, scope, wrong); err != ErrSignatureMismatch {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
}

func TestVerifyIgnoresUnsignedHeaders(t *testing.T) {
	// Headers outside the SignedHeaders list must not change the outcome.
	signer := NewSigV4Signer()
	verifier := NewSignatureVerifier(signer, logger.NewLogger(logger.LevelError))

	creds := Credentials{AccessKeyID: "AKIATEST00000000001", SecretAccessKey: "secret"}
	scope := CredentialScope{
		AccessKeyID: creds.AccessKeyID,
		Date:        testSigningTime.Format("20060102"),
		Region:      "us-east-1",
		Service:     constants.ServiceIAM,
	}

	req := newTestRequest("Action=ListUsers&Version=2010-05-08")
	signTestRequest(t, signer, req, creds, scope)
	req.Headers.Set("User-Agent", "added-after-signing/1.0")
	req.Headers.Set("X-Forwarded-For", "10.0.0.7")

	if err := verifier.Verify(context.Background(), req, scope, creds); err != nil {
		t.Fatalf("unsigned headers must not break verification: %v", err)
	}
}

func TestVerifyRequiresSignatureComponents(t *testing.T) {
	verifier := NewSignatureVerifier(NewSigV4Signer(), logger.NewLogger(logger.LevelError))
	scope := CredentialScope{AccessKeyID: "AKIATEST00000000001"}
	creds := Credentials{AccessKeyID: scope.AccessKeyID, SecretAccessKey: "secret"}

	req := newTestRequest("")
	req.Headers.Set(constants.HeaderAuthorization, "AWS4-HMAC-SHA256 Credential=x/y/z/iam/aws4_request")
	if err := verifier.Verify(context.Background(), req, scope, creds); err == nil || err == ErrSignatureMismatch {
		t.Fatalf("expected assembly error for missing signature, got %v", err)
	}

	req.Headers.Set(constants.HeaderAuthorization,
		"AWS4-HMAC-SHA256 Credential=x/y/z/iam/aws4_request, Signature=deadbeef")
	if err := verifier.Verify(context.Background(), req, scope, creds); err == nil || err == ErrSignatureMismatch {
		t.Fatalf("expected assembly error for missing signed headers, got %v", err)
	}
}

func TestS3SignerDiffersOnEscapablePaths(t *testing.T) {
	// The storage variant signs the raw path; the generic variant escapes
	// it. On a path with escapable characters the two signatures differ.
	creds := Credentials{AccessKeyID: "AKIATEST00000000001", SecretAccessKey: "secret"}
	scope := CredentialScope{
		AccessKeyID: creds.AccessKeyID,
		Date:        testSigningTime.Format("20060102"),
		Region:      "us-east-1",
		Service:     constants.ServiceS3,
	}

	headers := http.Header{}
	headers.Set(constants.HeaderHost, "localhost:5000")
	headers.Set(constants.HeaderAmzDate, testSigningTime.Format(constants.AmzDateFormat))
	signingReq := &SigningRequest{
		Method:  http.MethodGet,
		Path:    "/s3/reports/folder one/file.txt",
		Host:    "localhost:5000",
		Headers: headers,
		Time:    testSigningTime,
	}

	generic, err := NewSigV4Signer().Sign(context.Background(), creds, scope, signingReq)
	if err != nil {
		t.Fatalf("generic signing failed: %v", err)
	}
	s3, err := NewS3SigV4Signer().Sign(context.Background(), creds, scope, signingReq)
	if err != nil {
		t.Fatalf("s3 signing failed: %v", err)
	}
	if generic == s3 {
		t.Fatal("expected the two signing variants to diverge on an escapable path")
	}
}

func TestParseCredentialScope(t *testing.T) {
	header := "AWS4-HMAC-SHA256 Credential=AKIATEST00000000001/20260314/eu-west-2/ec2/aws4_request, " +
		"SignedHeaders=host;x-amz-date, Signature=abc123"
	scope, err := ParseCredentialScope(header)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if scope.AccessKeyID != "AKIATEST00000000001" || scope.Date != "20260314" ||
		scope.Region != "eu-west-2" || scope.Service != "ec2" {
		t.Fatalf("unexpected scope: %+v", scope)
	}

	if _, err := ParseCredentialScope(""); err == nil {
		t.Fatal("expected error for empty header")
	}
	if _, err := ParseCredentialScope("AWS4-HMAC-SHA256 Credential=onlykey, Signature=x"); err == nil {
		t.Fatal("expected error for truncated credential scope")
	}
}
