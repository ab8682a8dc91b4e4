package server

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"nimbus/internal/audit"
	"nimbus/internal/auth"
	"nimbus/internal/constants"
	"nimbus/internal/directory"
)

// maxBodyBytes caps request bodies; query-protocol payloads are small.
const maxBodyBytes = 1 << 20

// handleQuery serves the query-protocol endpoint: a form-encoded Action plus
// parameters, authenticated with the generic error flavor.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeQueryError(w, auth.NewAPIError(constants.ErrCodeMethodNotAllowed,
			"only POST is supported on this endpoint", http.StatusMethodNotAllowed))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeQueryError(w, auth.NewAPIError(constants.ErrCodeValidationError,
			"failed to read request body", http.StatusBadRequest))
		return
	}

	params, err := url.ParseQuery(string(body))
	if err != nil {
		s.writeQueryError(w, auth.NewAPIError(constants.ErrCodeValidationError,
			"malformed form body", http.StatusBadRequest))
		return
	}
	for key, values := range r.URL.Query() {
		for _, v := range values {
			params.Add(key, v)
		}
	}

	authReq := s.buildAuthRequest(r, body, params)

	var outcome *auth.Outcome
	if s.app.Config.AccessValidationEnabled() {
		outcome, err = s.app.QueryAuth.Authenticate(r.Context(), authReq)
		s.recordDecision(w, s.app.QueryAuth.Flavor(), outcome, err)
		if err != nil {
			s.writeQueryError(w, err)
			return
		}
	}

	s.dispatchAction(w, params, outcome)
}

// buildAuthRequest adapts an inbound HTTP request to the authenticator's
// view. The Host header is folded back in because Go moves it off the
// header map, and SignedHeaders lists always include host.
func (s *Server) buildAuthRequest(r *http.Request, body []byte, params url.Values) *auth.Request {
	headers := r.Header.Clone()
	headers.Set(constants.HeaderHost, r.Host)
	return &auth.Request{
		Method:  r.Method,
		Path:    r.URL.RequestURI(),
		Body:    body,
		Params:  params,
		Headers: headers,
		Host:    r.Host,
	}
}

// recordDecision appends the authentication outcome to the audit trail.
func (s *Server) recordDecision(w http.ResponseWriter, flavor auth.Flavor, outcome *auth.Outcome, authErr error) {
	entry := audit.Entry{
		RequestID: requestIDOf(w),
		Flavor:    flavor.String(),
		Outcome:   constants.AuditOutcomeAllowed,
	}
	if outcome != nil {
		entry.PrincipalARN = outcome.PrincipalARN
		entry.Action = outcome.Action
		entry.Resource = outcome.Resource
	}
	if authErr != nil {
		entry.Outcome = constants.AuditOutcomeDenied
		if apiErr, ok := auth.AsAPIError(authErr); ok {
			entry.ErrorCode = apiErr.Code
		} else {
			entry.Outcome = constants.AuditOutcomeError
		}
	}
	if err := s.app.Audit.Record(entry); err != nil {
		s.logger.Error("Failed to record audit entry: %v", err)
	}
}

// ============================================================================
// Action dispatch
// ============================================================================

func (s *Server) dispatchAction(w http.ResponseWriter, params url.Values, outcome *auth.Outcome) {
	action := params.Get("Action")
	switch action {
	case "CreateUser":
		s.actionCreateUser(w, params)
	case "GetUser":
		s.actionGetUser(w, params)
	case "ListUsers":
		s.actionListUsers(w)
	case "CreateAccessKey":
		s.actionCreateAccessKey(w, params)
	case "CreateLoginProfile":
		s.actionCreateLoginProfile(w, params)
	case "CreateGroup":
		s.actionCreateGroup(w, params)
	case "AddUserToGroup":
		s.actionAddUserToGroup(w, params)
	case "PutUserPolicy":
		s.actionPutInlinePolicy(w, params, "user")
	case "PutGroupPolicy":
		s.actionPutInlinePolicy(w, params, "group")
	case "PutRolePolicy":
		s.actionPutInlinePolicy(w, params, "role")
	case "CreatePolicy":
		s.actionCreatePolicy(w, params)
	case "AttachUserPolicy":
		s.actionAttachPolicy(w, params, "user")
	case "AttachGroupPolicy":
		s.actionAttachPolicy(w, params, "group")
	case "AttachRolePolicy":
		s.actionAttachPolicy(w, params, "role")
	case "CreateRole":
		s.actionCreateRole(w, params)
	case "AssumeRole":
		s.actionAssumeRole(w, params)
	case "GetCallerIdentity":
		s.actionGetCallerIdentity(w, outcome)
	default:
		s.writeQueryError(w, auth.NewAPIError(constants.ErrCodeInvalidAction,
			fmt.Sprintf("unknown action: %s", action), http.StatusBadRequest))
	}
}

// directoryError maps store errors onto the query-protocol vocabulary.
func (s *Server) directoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrNotFound):
		s.writeQueryError(w, auth.NewAPIError(constants.ErrCodeNoSuchEntity, err.Error(), http.StatusNotFound))
	case errors.Is(err, directory.ErrAlreadyExists):
		s.writeQueryError(w, auth.NewAPIError(constants.ErrCodeEntityExists, err.Error(), http.StatusConflict))
	default:
		s.logger.Error("Directory operation failed: %v", err)
		s.writeQueryError(w, auth.NewAPIError(constants.ErrCodeInternalError, "internal failure", http.StatusInternalServerError))
	}
}

// ============================================================================
// XML result shapes
// ============================================================================

type responseMetadata struct {
	RequestID string `xml:"RequestId"`
}

type userXML struct {
	UserName   string `xml:"UserName"`
	Path       string `xml:"Path"`
	Arn        string `xml:"Arn"`
	CreateDate string `xml:"CreateDate"`
}

type accessKeyXML struct {
	AccessKeyID     string `xml:"AccessKeyId"`
	SecretAccessKey string `xml:"SecretAccessKey,omitempty"`
	UserName        string `xml:"UserName"`
	Status          string `xml:"Status"`
}

type credentialsXML struct {
	AccessKeyID     string `xml:"AccessKeyId"`
	SecretAccessKey string `xml:"SecretAccessKey"`
	SessionToken    string `xml:"SessionToken"`
	Expiration      string `xml:"Expiration"`
}

func userToXML(u *directory.User) userXML {
	return userXML{
		UserName:   u.Name,
		Path:       u.Path,
		Arn:        u.ARN,
		CreateDate: time.Unix(u.CreatedAt, 0).UTC().Format(time.RFC3339),
	}
}

// ============================================================================
// IAM actions
// ============================================================================

func (s *Server) actionCreateUser(w http.ResponseWriter, params url.Values) {
	user, err := s.app.Directory.CreateUser(params.Get("UserName"), params.Get("Path"))
	if err != nil {
		s.directoryError(w, err)
		return
	}
	WriteXML(w, http.StatusOK, struct {
		XMLName  xml.Name         `xml:"CreateUserResponse"`
		User     userXML          `xml:"CreateUserResult>User"`
		Metadata responseMetadata `xml:"ResponseMetadata"`
	}{User: userToXML(user), Metadata: responseMetadata{RequestID: requestIDOf(w)}})
}

func (s *Server) actionGetUser(w http.ResponseWriter, params url.Values) {
	user, err := s.app.Directory.GetUser(params.Get("UserName"))
	if err != nil {
		s.directoryError(w, err)
		return
	}
	WriteXML(w, http.StatusOK, struct {
		XMLName  xml.Name         `xml:"GetUserResponse"`
		User     userXML          `xml:"GetUserResult>User"`
		Metadata responseMetadata `xml:"ResponseMetadata"`
	}{User: userToXML(user), Metadata: responseMetadata{RequestID: requestIDOf(w)}})
}

func (s *Server) actionListUsers(w http.ResponseWriter) {
	users, err := s.app.Directory.ListUsers()
	if err != nil {
		s.directoryError(w, err)
		return
	}
	items := make([]userXML, 0, len(users))
	for i := range users {
		items = append(items, userToXML(&users[i]))
	}
	WriteXML(w, http.StatusOK, struct {
		XMLName  xml.Name         `xml:"ListUsersResponse"`
		Users    []userXML        `xml:"ListUsersResult>Users>member"`
		Metadata responseMetadata `xml:"ResponseMetadata"`
	}{Users: items, Metadata: responseMetadata{RequestID: requestIDOf(w)}})
}

func (s *Server) actionCreateAccessKey(w http.ResponseWriter, params url.Values) {
	key, err := s.app.Directory.CreateAccessKey(params.Get("UserName"))
	if err != nil {
		s.directoryError(w, err)
		return
	}
	WriteXML(w, http.StatusOK, struct {
		XMLName  xml.Name         `xml:"CreateAccessKeyResponse"`
		Key      accessKeyXML     `xml:"CreateAccessKeyResult>AccessKey"`
		Metadata responseMetadata `xml:"ResponseMetadata"`
	}{
		Key: accessKeyXML{
			AccessKeyID:     key.AccessKeyID,
			SecretAccessKey: key.SecretAccessKey,
			UserName:        key.UserName,
			Status:          key.Status,
		},
		Metadata: responseMetadata{RequestID: requestIDOf(w)},
	})
}

func (s *Server) actionCreateLoginProfile(w http.ResponseWriter, params url.Values) {
	userName := params.Get("UserName")
	if err := s.app.Directory.CreateLoginProfile(userName, params.Get("Password")); err != nil {
		s.directoryError(w, err)
		return
	}
	WriteXML(w, http.StatusOK, struct {
		XMLName  xml.Name         `xml:"CreateLoginProfileResponse"`
		UserName string           `xml:"CreateLoginProfileResult>LoginProfile>UserName"`
		Metadata responseMetadata `xml:"ResponseMetadata"`
	}{UserName: userName, Metadata: responseMetadata{RequestID: requestIDOf(w)}})
}

func (s *Server) actionCreateGroup(w http.ResponseWriter, params url.Values) {
	group, err := s.app.Directory.CreateGroup(params.Get("GroupName"), params.Get("Path"))
	if err != nil {
		s.directoryError(w, err)
		return
	}
	WriteXML(w, http.StatusOK, struct {
		XMLName   xml.Name         `xml:"CreateGroupResponse"`
		GroupName string           `xml:"CreateGroupResult>Group>GroupName"`
		Arn       string           `xml:"CreateGroupResult>Group>Arn"`
		Metadata  responseMetadata `xml:"ResponseMetadata"`
	}{GroupName: group.Name, Arn: group.ARN, Metadata: responseMetadata{RequestID: requestIDOf(w)}})
}

func (s *Server) actionAddUserToGroup(w http.ResponseWriter, params url.Values) {
	if err := s.app.Directory.AddUserToGroup(params.Get("GroupName"), params.Get("UserName")); err != nil {
		s.directoryError(w, err)
		return
	}
	s.writeEmptyResult(w, "AddUserToGroupResponse")
}

func (s *Server) actionPutInlinePolicy(w http.ResponseWriter, params url.Values, kind string) {
	policyName := params.Get("PolicyName")
	document := params.Get("PolicyDocument")

	var err error
	var responseName string
	switch kind {
	case "user":
		err = s.app.Directory.PutUserPolicy(params.Get("UserName"), policyName, document)
		responseName = "PutUserPolicyResponse"
	case "group":
		err = s.app.Directory.PutGroupPolicy(params.Get("GroupName"), policyName, document)
		responseName = "PutGroupPolicyResponse"
	case "role":
		err = s.app.Directory.PutRolePolicy(params.Get("RoleName"), policyName, document)
		responseName = "PutRolePolicyResponse"
	}
	if err != nil {
		s.directoryError(w, err)
		return
	}
	s.writeEmptyResult(w, responseName)
}

func (s *Server) actionCreatePolicy(w http.ResponseWriter, params url.Values) {
	policy, err := s.app.Directory.CreatePolicy(params.Get("PolicyName"), params.Get("Path"), params.Get("PolicyDocument"))
	if err != nil {
		s.directoryError(w, err)
		return
	}
	WriteXML(w, http.StatusOK, struct {
		XMLName    xml.Name         `xml:"CreatePolicyResponse"`
		PolicyName string           `xml:"CreatePolicyResult>Policy>PolicyName"`
		Arn        string           `xml:"CreatePolicyResult>Policy>Arn"`
		Metadata   responseMetadata `xml:"ResponseMetadata"`
	}{PolicyName: policy.Name, Arn: policy.ARN, Metadata: responseMetadata{RequestID: requestIDOf(w)}})
}

func (s *Server) actionAttachPolicy(w http.ResponseWriter, params url.Values, kind string) {
	policyName := params.Get("PolicyName")

	var err error
	var responseName string
	switch kind {
	case "user":
		err = s.app.Directory.AttachUserPolicy(params.Get("UserName"), policyName)
		responseName = "AttachUserPolicyResponse"
	case "group":
		err = s.app.Directory.AttachGroupPolicy(params.Get("GroupName"), policyName)
		responseName = "AttachGroupPolicyResponse"
	case "role":
		err = s.app.Directory.AttachRolePolicy(params.Get("RoleName"), policyName)
		responseName = "AttachRolePolicyResponse"
	}
	if err != nil {
		s.directoryError(w, err)
		return
	}
	s.writeEmptyResult(w, responseName)
}

func (s *Server) actionCreateRole(w http.ResponseWriter, params url.Values) {
	role, err := s.app.Directory.CreateRole(params.Get("RoleName"), params.Get("Path"),
		params.Get("AssumeRolePolicyDocument"))
	if err != nil {
		s.directoryError(w, err)
		return
	}
	WriteXML(w, http.StatusOK, struct {
		XMLName  xml.Name         `xml:"CreateRoleResponse"`
		RoleName string           `xml:"CreateRoleResult>Role>RoleName"`
		Arn      string           `xml:"CreateRoleResult>Role>Arn"`
		Metadata responseMetadata `xml:"ResponseMetadata"`
	}{RoleName: role.Name, Arn: role.ARN, Metadata: responseMetadata{RequestID: requestIDOf(w)}})
}

// ============================================================================
// STS actions
// ============================================================================

func (s *Server) actionAssumeRole(w http.ResponseWriter, params url.Values) {
	roleName := params.Get("RoleName")
	if roleName == "" {
		// AssumeRole callers pass an ARN; accept either form.
		roleName = roleNameFromARN(params.Get("RoleArn"))
	}
	session, err := s.app.Sessions.AssumeRole(roleName, params.Get("RoleSessionName"))
	if err != nil {
		s.directoryError(w, err)
		return
	}
	WriteXML(w, http.StatusOK, struct {
		XMLName     xml.Name         `xml:"AssumeRoleResponse"`
		Credentials credentialsXML   `xml:"AssumeRoleResult>Credentials"`
		AssumedARN  string           `xml:"AssumeRoleResult>AssumedRoleUser>Arn"`
		Metadata    responseMetadata `xml:"ResponseMetadata"`
	}{
		Credentials: credentialsXML{
			AccessKeyID:     session.AccessKeyID,
			SecretAccessKey: session.SecretAccessKey,
			SessionToken:    session.SessionToken,
			Expiration:      time.Unix(session.ExpiresAt, 0).UTC().Format(time.RFC3339),
		},
		AssumedARN: session.ARN,
		Metadata:   responseMetadata{RequestID: requestIDOf(w)},
	})
}

func (s *Server) actionGetCallerIdentity(w http.ResponseWriter, outcome *auth.Outcome) {
	arn := fmt.Sprintf("arn:aws:iam::%s:root", s.app.Config.AccountID)
	if outcome != nil && outcome.PrincipalARN != "" {
		arn = outcome.PrincipalARN
	}
	WriteXML(w, http.StatusOK, struct {
		XMLName  xml.Name         `xml:"GetCallerIdentityResponse"`
		Arn      string           `xml:"GetCallerIdentityResult>Arn"`
		Account  string           `xml:"GetCallerIdentityResult>Account"`
		Metadata responseMetadata `xml:"ResponseMetadata"`
	}{Arn: arn, Account: s.app.Config.AccountID, Metadata: responseMetadata{RequestID: requestIDOf(w)}})
}

// writeEmptyResult renders a result-less success envelope.
func (s *Server) writeEmptyResult(w http.ResponseWriter, responseName string) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeXML)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%s<%s><ResponseMetadata><RequestId>%s</RequestId></ResponseMetadata></%s>",
		xml.Header, responseName, requestIDOf(w), responseName)
}

// roleNameFromARN extracts the trailing role name from a role ARN.
func roleNameFromARN(arn string) string {
	for i := len(arn) - 1; i >= 0; i-- {
		if arn[i] == '/' {
			return arn[i+1:]
		}
	}
	return arn
}
