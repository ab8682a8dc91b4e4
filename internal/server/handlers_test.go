package server

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	"nimbus/internal/constants"
)

const allowListUsers = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":"iam:ListUsers","Resource":"*"}]}`

func TestRootCanManageDirectory(t *testing.T) {
	ts := StartTestServer(t)

	params := url.Values{}
	params.Set("Action", "CreateUser")
	params.Set("UserName", "alice")
	var createResp struct {
		UserName string `xml:"CreateUserResult>User>UserName"`
		Arn      string `xml:"CreateUserResult>User>Arn"`
	}
	ts.QueryExpectSuccess(t, ts.Root, constants.ServiceIAM, params, &createResp)
	if createResp.UserName != "alice" {
		t.Fatalf("unexpected user name: %s", createResp.UserName)
	}
	if !strings.HasSuffix(createResp.Arn, ":user/alice") {
		t.Fatalf("unexpected ARN: %s", createResp.Arn)
	}

	params = url.Values{}
	params.Set("Action", "ListUsers")
	var listResp struct {
		Users []struct {
			UserName string `xml:"UserName"`
		} `xml:"ListUsersResult>Users>member"`
	}
	ts.QueryExpectSuccess(t, ts.Root, constants.ServiceIAM, params, &listResp)
	if len(listResp.Users) != 2 { // root + alice
		t.Fatalf("expected 2 users, got %d", len(listResp.Users))
	}
}

func TestUnsignedRequestRejected(t *testing.T) {
	ts := StartTestServer(t)

	resp, err := http.Post(ts.URL+"/", constants.ContentTypeForm,
		bytes.NewBufferString("Action=ListUsers"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	var envelope queryErrorEnvelope
	if err := xml.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if envelope.Code != constants.ErrCodeMissingAuthenticationToken {
		t.Fatalf("expected %s, got %s", constants.ErrCodeMissingAuthenticationToken, envelope.Code)
	}
}

func TestUnknownAccessKeyRejected(t *testing.T) {
	ts := StartTestServer(t)

	stranger := aws.Credentials{AccessKeyID: "AKIASTRANGER0000001", SecretAccessKey: "nope"}
	params := url.Values{}
	params.Set("Action", "ListUsers")

	envelope := ts.QueryExpectError(t, stranger, constants.ServiceIAM, params, http.StatusForbidden)
	if envelope.Code != constants.ErrCodeInvalidClientTokenID {
		t.Fatalf("expected %s, got %s", constants.ErrCodeInvalidClientTokenID, envelope.Code)
	}
}

func TestUnknownAccessKeyEC2Vocabulary(t *testing.T) {
	ts := StartTestServer(t)

	stranger := aws.Credentials{AccessKeyID: "AKIASTRANGER0000001", SecretAccessKey: "nope"}
	params := url.Values{}
	params.Set("Action", "DescribeInstances")

	envelope := ts.QueryExpectError(t, stranger, constants.ServiceEC2, params, http.StatusUnauthorized)
	if envelope.Code != constants.ErrCodeAuthFailure {
		t.Fatalf("expected %s, got %s", constants.ErrCodeAuthFailure, envelope.Code)
	}
}

func TestTamperedBodyRejected(t *testing.T) {
	ts := StartTestServer(t)

	body := []byte("Action=ListUsers")
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set(constants.HeaderContentType, constants.ContentTypeForm)
	SignRequest(t, req, body, ts.Root, constants.ServiceIAM)

	// Swap the body after signing; same length, so only the payload hash
	// changes.
	tampered := []byte("Action=ListGroups")[:len(body)]
	req.Body = io.NopCloser(bytes.NewReader(tampered))
	req.ContentLength = int64(len(tampered))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	var envelope queryErrorEnvelope
	if err := xml.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if envelope.Code != constants.ErrCodeSignatureDoesNotMatch {
		t.Fatalf("expected %s, got %s", constants.ErrCodeSignatureDoesNotMatch, envelope.Code)
	}
}

func TestPolicyGrantUnlocksAction(t *testing.T) {
	ts := StartTestServer(t)
	bob := ts.CreateUserWithKey(t, "bob")

	params := url.Values{}
	params.Set("Action", "ListUsers")

	envelope := ts.QueryExpectError(t, bob, constants.ServiceIAM, params, http.StatusForbidden)
	if envelope.Code != constants.ErrCodeAccessDenied {
		t.Fatalf("expected %s, got %s", constants.ErrCodeAccessDenied, envelope.Code)
	}
	if !strings.Contains(envelope.Message, "user/bob") ||
		!strings.Contains(envelope.Message, "iam:ListUsers") {
		t.Fatalf("denial must name principal and action: %q", envelope.Message)
	}

	ts.PutUserPolicy(t, "bob", "allow-list", allowListUsers)
	ts.QueryExpectSuccess(t, bob, constants.ServiceIAM, params, nil)
}

func TestExplicitDenyOverridesBroadAllow(t *testing.T) {
	ts := StartTestServer(t)
	carol := ts.CreateUserWithKey(t, "carol")

	// Broad allow through a group, explicit deny directly on the user.
	params := url.Values{}
	params.Set("Action", "CreateGroup")
	params.Set("GroupName", "admins")
	ts.QueryExpectSuccess(t, ts.Root, constants.ServiceIAM, params, nil)

	params = url.Values{}
	params.Set("Action", "AddUserToGroup")
	params.Set("GroupName", "admins")
	params.Set("UserName", "carol")
	ts.QueryExpectSuccess(t, ts.Root, constants.ServiceIAM, params, nil)

	params = url.Values{}
	params.Set("Action", "PutGroupPolicy")
	params.Set("GroupName", "admins")
	params.Set("PolicyName", "all")
	params.Set("PolicyDocument", `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":"*","Resource":"*"}]}`)
	ts.QueryExpectSuccess(t, ts.Root, constants.ServiceIAM, params, nil)

	ts.PutUserPolicy(t, "carol", "no-delete",
		`{"Version":"2012-10-17","Statement":[{"Effect":"Deny","Action":"s3:DeleteObject","Resource":"*"}]}`)

	// The group allow covers bucket listing.
	resp := ts.S3Request(t, carol, http.MethodGet, "/s3/reports")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected listing to be allowed, got %d", resp.StatusCode)
	}

	// The user deny wins for object deletion.
	resp = ts.S3Request(t, carol, http.MethodDelete, "/s3/reports/old.txt")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	var envelope s3ErrorEnvelope
	if err := xml.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if envelope.Code != constants.ErrCodeAccessDenied || envelope.Message != "Access Denied" {
		t.Fatalf("unexpected s3 denial: %+v", envelope)
	}
	if envelope.BucketName != "reports" {
		t.Fatalf("expected bucket on error, got %q", envelope.BucketName)
	}
}

func TestS3UnknownKeyCarriesBucket(t *testing.T) {
	ts := StartTestServer(t)

	stranger := aws.Credentials{AccessKeyID: "AKIASTRANGER0000001", SecretAccessKey: "nope"}
	resp := ts.S3Request(t, stranger, http.MethodGet, "/s3/reports")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	var envelope s3ErrorEnvelope
	if err := xml.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if envelope.Code != constants.ErrCodeInvalidAccessKeyID {
		t.Fatalf("expected %s, got %s", constants.ErrCodeInvalidAccessKeyID, envelope.Code)
	}
	if envelope.BucketName != "reports" {
		t.Fatalf("expected bucket on error, got %q", envelope.BucketName)
	}
}

func TestAssumeRoleSessionFlow(t *testing.T) {
	ts := StartTestServer(t)

	params := url.Values{}
	params.Set("Action", "CreateRole")
	params.Set("RoleName", "deployer")
	ts.QueryExpectSuccess(t, ts.Root, constants.ServiceIAM, params, nil)

	params = url.Values{}
	params.Set("Action", "PutRolePolicy")
	params.Set("RoleName", "deployer")
	params.Set("PolicyName", "identity")
	params.Set("PolicyDocument", `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":"sts:GetCallerIdentity","Resource":"*"}]}`)
	ts.QueryExpectSuccess(t, ts.Root, constants.ServiceIAM, params, nil)

	params = url.Values{}
	params.Set("Action", "AssumeRole")
	params.Set("RoleName", "deployer")
	params.Set("RoleSessionName", "ci")
	var assumeResp struct {
		AccessKeyID     string `xml:"AssumeRoleResult>Credentials>AccessKeyId"`
		SecretAccessKey string `xml:"AssumeRoleResult>Credentials>SecretAccessKey"`
		SessionToken    string `xml:"AssumeRoleResult>Credentials>SessionToken"`
		Arn             string `xml:"AssumeRoleResult>AssumedRoleUser>Arn"`
	}
	ts.QueryExpectSuccess(t, ts.Root, constants.ServiceSTS, params, &assumeResp)
	if !strings.HasPrefix(assumeResp.AccessKeyID, constants.TemporaryKeyPrefix) {
		t.Fatalf("expected temporary key, got %s", assumeResp.AccessKeyID)
	}
	if !strings.Contains(assumeResp.Arn, "assumed-role/deployer/ci") {
		t.Fatalf("unexpected session ARN: %s", assumeResp.Arn)
	}

	session := aws.Credentials{
		AccessKeyID:     assumeResp.AccessKeyID,
		SecretAccessKey: assumeResp.SecretAccessKey,
		SessionToken:    assumeResp.SessionToken,
	}
	params = url.Values{}
	params.Set("Action", "GetCallerIdentity")
	var identityResp struct {
		Arn string `xml:"GetCallerIdentityResult>Arn"`
	}
	ts.QueryExpectSuccess(t, session, constants.ServiceSTS, params, &identityResp)
	if !strings.Contains(identityResp.Arn, "assumed-role/deployer/ci") {
		t.Fatalf("unexpected caller identity: %s", identityResp.Arn)
	}

	// The role policy covers only identity lookup.
	params = url.Values{}
	params.Set("Action", "ListUsers")
	envelope := ts.QueryExpectError(t, session, constants.ServiceIAM, params, http.StatusForbidden)
	if envelope.Code != constants.ErrCodeAccessDenied {
		t.Fatalf("expected %s, got %s", constants.ErrCodeAccessDenied, envelope.Code)
	}
}

func TestUnknownActionRejected(t *testing.T) {
	ts := StartTestServer(t)

	params := url.Values{}
	params.Set("Action", "FrobnicateEverything")

	envelope := ts.QueryExpectError(t, ts.Root, constants.ServiceIAM, params, http.StatusBadRequest)
	if envelope.Code != constants.ErrCodeInvalidAction {
		t.Fatalf("expected %s, got %s", constants.ErrCodeInvalidAction, envelope.Code)
	}
}

func TestAuditTrailRecordsDecisions(t *testing.T) {
	ts := StartTestServer(t)

	params := url.Values{}
	params.Set("Action", "ListUsers")
	ts.QueryExpectSuccess(t, ts.Root, constants.ServiceIAM, params, nil)

	stranger := aws.Credentials{AccessKeyID: "AKIASTRANGER0000001", SecretAccessKey: "nope"}
	ts.QueryExpectError(t, stranger, constants.ServiceIAM, params, http.StatusForbidden)

	resp, err := http.Get(ts.URL + "/api/audit")
	if err != nil {
		t.Fatalf("audit query failed: %v", err)
	}
	defer resp.Body.Close()
	var auditResp struct {
		Count   int `json:"count"`
		Entries []struct {
			Outcome   string `json:"outcome"`
			ErrorCode string `json:"error_code"`
			Action    string `json:"action"`
		} `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auditResp); err != nil {
		t.Fatalf("failed to decode audit response: %v", err)
	}
	if auditResp.Count != 2 {
		t.Fatalf("expected 2 audit entries, got %d", auditResp.Count)
	}
	// Newest first: the denial, then the allowed request.
	if auditResp.Entries[0].Outcome != constants.AuditOutcomeDenied ||
		auditResp.Entries[0].ErrorCode != constants.ErrCodeInvalidClientTokenID {
		t.Fatalf("unexpected denied entry: %+v", auditResp.Entries[0])
	}
	if auditResp.Entries[1].Outcome != constants.AuditOutcomeAllowed ||
		auditResp.Entries[1].Action != "iam:ListUsers" {
		t.Fatalf("unexpected allowed entry: %+v", auditResp.Entries[1])
	}

	verifyResp, err := http.Get(ts.URL + "/api/audit/verify")
	if err != nil {
		t.Fatalf("audit verify failed: %v", err)
	}
	defer verifyResp.Body.Close()
	var verify struct {
		Intact   bool  `json:"intact"`
		Verified int64 `json:"verified"`
	}
	if err := json.NewDecoder(verifyResp.Body).Decode(&verify); err != nil {
		t.Fatalf("failed to decode verify response: %v", err)
	}
	if !verify.Intact || verify.Verified != 2 {
		t.Fatalf("expected intact chain of 2, got %+v", verify)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := StartTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health.Status != "ok" {
		t.Fatalf("unexpected status: %s", health.Status)
	}
}
