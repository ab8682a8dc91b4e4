package server

import (
	"encoding/json"
	"encoding/xml"
	"net/http"

	"nimbus/internal/auth"
	"nimbus/internal/constants"
)

// queryErrorResponse is the generic query-protocol error envelope.
type queryErrorResponse struct {
	XMLName   xml.Name `xml:"ErrorResponse"`
	Type      string   `xml:"Error>Type"`
	Code      string   `xml:"Error>Code"`
	Message   string   `xml:"Error>Message"`
	RequestID string   `xml:"RequestId"`
}

// s3ErrorResponse is the S3-style error envelope; BucketName is present only
// for resource-scoped failures.
type s3ErrorResponse struct {
	XMLName    xml.Name `xml:"Error"`
	Code       string   `xml:"Code"`
	Message    string   `xml:"Message"`
	BucketName string   `xml:"BucketName,omitempty"`
	RequestID  string   `xml:"RequestId"`
}

// WriteXML writes an XML response with the given status code.
func WriteXML(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeXML)
	w.WriteHeader(status)
	w.Write([]byte(xml.Header))
	xml.NewEncoder(w).Encode(payload)
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeQueryError renders an error in the query-protocol envelope. Non-API
// errors become InternalFailure.
func (s *Server) writeQueryError(w http.ResponseWriter, err error) {
	apiErr, ok := auth.AsAPIError(err)
	if !ok {
		apiErr = auth.NewAPIError(constants.ErrCodeInternalError, "internal failure", http.StatusInternalServerError)
	}
	WriteXML(w, apiErr.HTTPStatus, queryErrorResponse{
		Type:      "Sender",
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		RequestID: requestIDOf(w),
	})
}

// writeS3Error renders an error in the S3 envelope, naming the bucket when
// the failure is resource-scoped.
func (s *Server) writeS3Error(w http.ResponseWriter, err error) {
	apiErr, ok := auth.AsAPIError(err)
	if !ok {
		apiErr = auth.NewAPIError(constants.ErrCodeInternalError, "internal failure", http.StatusInternalServerError)
	}
	WriteXML(w, apiErr.HTTPStatus, s3ErrorResponse{
		Code:       apiErr.Code,
		Message:    apiErr.Message,
		BucketName: apiErr.Resource,
		RequestID:  requestIDOf(w),
	})
}
