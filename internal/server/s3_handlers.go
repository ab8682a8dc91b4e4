package server

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strings"

	"nimbus/internal/auth"
	"nimbus/internal/constants"
)

// handleS3 serves the path-style S3 surface under /s3/{bucket}[/{key}].
// Authentication uses the S3 error flavor: resource-scoped errors and the
// S3 signing variant (unescaped URI paths).
func (s *Server) handleS3(w http.ResponseWriter, r *http.Request) {
	bucket, key := splitS3Path(r.URL.Path)
	if bucket == "" {
		s.writeS3Error(w, auth.NewAPIError(constants.ErrCodeNoSuchBucket,
			"no bucket named in request", http.StatusNotFound))
		return
	}

	actionName, err := s3ActionName(r.Method, key)
	if err != nil {
		s.writeS3Error(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeS3Error(w, auth.NewAPIError(constants.ErrCodeValidationError,
			"failed to read request body", http.StatusBadRequest))
		return
	}

	params := url.Values{}
	params.Set("Action", actionName)
	params.Set("BucketName", bucket)
	authReq := s.buildAuthRequest(r, body, params)

	if s.app.Config.AccessValidationEnabled() {
		outcome, authErr := s.app.S3Auth.Authenticate(r.Context(), authReq)
		s.recordDecision(w, s.app.S3Auth.Flavor(), outcome, authErr)
		if authErr != nil {
			s.writeS3Error(w, authErr)
			return
		}
	}

	s.serveS3Action(w, actionName, bucket)
}

// s3ActionName maps method and key presence onto the action the request
// needs permission for. The service prefix is added by the authenticator
// from the credential scope.
func s3ActionName(method, key string) (string, error) {
	if key == "" {
		switch method {
		case http.MethodGet, http.MethodHead:
			return "ListBucket", nil
		case http.MethodPut:
			return "CreateBucket", nil
		case http.MethodDelete:
			return "DeleteBucket", nil
		}
	} else {
		switch method {
		case http.MethodGet, http.MethodHead:
			return "GetObject", nil
		case http.MethodPut:
			return "PutObject", nil
		case http.MethodDelete:
			return "DeleteObject", nil
		}
	}
	return "", auth.NewAPIError(constants.ErrCodeMethodNotAllowed,
		"method not supported on this resource", http.StatusMethodNotAllowed)
}

// serveS3Action renders a minimal success for the authorized operation. The
// bucket surface exists to exercise resource-scoped authorization; it does
// not store objects.
func (s *Server) serveS3Action(w http.ResponseWriter, actionName, bucket string) {
	switch actionName {
	case "ListBucket":
		WriteXML(w, http.StatusOK, struct {
			XMLName xml.Name `xml:"ListBucketResult"`
			Name    string   `xml:"Name"`
			MaxKeys int      `xml:"MaxKeys"`
		}{Name: bucket, MaxKeys: 1000})
	case "GetObject":
		s.writeS3Error(w, auth.NewAPIError("NoSuchKey", "The specified key does not exist.", http.StatusNotFound))
	case "CreateBucket":
		w.Header().Set("Location", "/s3/"+bucket)
		w.WriteHeader(http.StatusOK)
	default:
		// PutObject, DeleteBucket, DeleteObject
		w.WriteHeader(http.StatusOK)
	}
}

// splitS3Path extracts bucket and key from /s3/{bucket}/{key...}.
func splitS3Path(path string) (bucket, key string) {
	rest := strings.TrimPrefix(path, "/s3/")
	rest = strings.TrimPrefix(rest, "/")
	bucket, key, _ = strings.Cut(rest, "/")
	return bucket, key
}
