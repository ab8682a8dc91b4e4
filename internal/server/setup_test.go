package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"nimbus/internal/config"
	"nimbus/internal/constants"
	"nimbus/internal/database"
	"nimbus/internal/directory"
	"nimbus/internal/logger"
)

// TestServer wraps a running server with its bootstrap credentials.
type TestServer struct {
	Server *httptest.Server
	App    *App
	URL    string
	Root   aws.Credentials
}

// StartTestServer boots a server over a fresh directory database and captures
// the bootstrap root credentials.
func StartTestServer(t *testing.T) *TestServer {
	t.Helper()

	cfg := &config.Config{WorkingDirectory: t.TempDir()}
	cfg.ApplyDefaults()

	log := logger.NewLogger(logger.LevelError)
	app := NewApp(cfg, log)

	db, err := database.InitDirectoryDB(filepath.Join(cfg.WorkingDirectory, constants.DirectoryDB))
	if err != nil {
		t.Fatalf("failed to init directory db: %v", err)
	}
	app.SetDB(db)

	result, err := directory.Bootstrap(app.Directory, log)
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected bootstrap credentials on a fresh directory")
	}

	srv := NewServer(app)
	httpServer := httptest.NewServer(srv.Handler())

	ts := &TestServer{
		Server: httpServer,
		App:    app,
		URL:    httpServer.URL,
		Root: aws.Credentials{
			AccessKeyID:     result.AccessKeyID,
			SecretAccessKey: result.SecretAccessKey,
		},
	}
	t.Cleanup(func() {
		httpServer.Close()
		db.Close()
	})
	return ts
}

// SignRequest applies a SigV4 Authorization header the way a real client
// would. S3 requests sign the raw path.
func SignRequest(t *testing.T, req *http.Request, body []byte, creds aws.Credentials, service string) {
	t.Helper()

	sum := sha256.Sum256(body)
	signer := v4.NewSigner(func(o *v4.SignerOptions) {
		o.DisableURIPathEscaping = service == constants.ServiceS3
	})
	err := signer.SignHTTP(context.Background(), creds, req,
		hex.EncodeToString(sum[:]), service, constants.DefaultRegion, time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to sign request: %v", err)
	}
}

// QueryRequest sends a signed query-protocol action and returns the response.
func (ts *TestServer) QueryRequest(t *testing.T, creds aws.Credentials, service string, params url.Values) *http.Response {
	t.Helper()

	body := []byte(params.Encode())
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set(constants.HeaderContentType, constants.ContentTypeForm)
	SignRequest(t, req, body, creds, service)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// QueryExpectSuccess sends a signed action and decodes the XML response into
// target, failing the test on a non-200 status.
func (ts *TestServer) QueryExpectSuccess(t *testing.T, creds aws.Credentials, service string, params url.Values, target interface{}) {
	t.Helper()

	resp := ts.QueryRequest(t, creds, service, params)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
	}
	if target != nil {
		if err := xml.Unmarshal(raw, target); err != nil {
			t.Fatalf("failed to decode response: %v (%s)", err, raw)
		}
	}
}

// QueryExpectError sends a signed action and decodes the query error envelope.
func (ts *TestServer) QueryExpectError(t *testing.T, creds aws.Credentials, service string, params url.Values, wantStatus int) queryErrorEnvelope {
	t.Helper()

	resp := ts.QueryRequest(t, creds, service, params)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("expected %d, got %d: %s", wantStatus, resp.StatusCode, raw)
	}
	var envelope queryErrorEnvelope
	if err := xml.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("failed to decode error envelope: %v (%s)", err, raw)
	}
	return envelope
}

// S3Request sends a signed path-style bucket request.
func (ts *TestServer) S3Request(t *testing.T, creds aws.Credentials, method, path string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	SignRequest(t, req, nil, creds, constants.ServiceS3)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// CreateUserWithKey provisions a user and a fresh access key through the API
// as root.
func (ts *TestServer) CreateUserWithKey(t *testing.T, userName string) aws.Credentials {
	t.Helper()

	params := url.Values{}
	params.Set("Action", "CreateUser")
	params.Set("UserName", userName)
	ts.QueryExpectSuccess(t, ts.Root, constants.ServiceIAM, params, nil)

	params = url.Values{}
	params.Set("Action", "CreateAccessKey")
	params.Set("UserName", userName)
	var keyResp struct {
		AccessKeyID     string `xml:"CreateAccessKeyResult>AccessKey>AccessKeyId"`
		SecretAccessKey string `xml:"CreateAccessKeyResult>AccessKey>SecretAccessKey"`
	}
	ts.QueryExpectSuccess(t, ts.Root, constants.ServiceIAM, params, &keyResp)
	if keyResp.AccessKeyID == "" || keyResp.SecretAccessKey == "" {
		t.Fatal("expected minted access key in response")
	}
	return aws.Credentials{
		AccessKeyID:     keyResp.AccessKeyID,
		SecretAccessKey: keyResp.SecretAccessKey,
	}
}

// PutUserPolicy installs an inline policy through the API as root.
func (ts *TestServer) PutUserPolicy(t *testing.T, userName, policyName, document string) {
	t.Helper()
	params := url.Values{}
	params.Set("Action", "PutUserPolicy")
	params.Set("UserName", userName)
	params.Set("PolicyName", policyName)
	params.Set("PolicyDocument", document)
	ts.QueryExpectSuccess(t, ts.Root, constants.ServiceIAM, params, nil)
}

// queryErrorEnvelope mirrors the query-protocol error response for decoding.
type queryErrorEnvelope struct {
	XMLName xml.Name `xml:"ErrorResponse"`
	Code    string   `xml:"Error>Code"`
	Message string   `xml:"Error>Message"`
}

// s3ErrorEnvelope mirrors the storage error response for decoding.
type s3ErrorEnvelope struct {
	XMLName    xml.Name `xml:"Error"`
	Code       string   `xml:"Code"`
	Message    string   `xml:"Message"`
	BucketName string   `xml:"BucketName"`
}
