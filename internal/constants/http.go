package constants

import "time"

// HTTP Server Timeouts
const (
	HTTPIdleTimeoutSecs = 120
	HTTPIdleTimeout     = HTTPIdleTimeoutSecs * time.Second
	HTTPReadTimeout     = 30 * time.Second
	HTTPWriteTimeout    = 30 * time.Second
	ShutdownTimeoutSecs = 10
)

// Content Types
const (
	ContentTypeJSON = "application/json"
	ContentTypeXML  = "application/xml"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// HTTP Header Names
const (
	HeaderContentType      = "Content-Type"
	HeaderAuthorization    = "Authorization"
	HeaderHost             = "Host"
	HeaderXRequestID       = "X-Request-ID"
	HeaderAmzSecurityToken = "X-Amz-Security-Token"
	HeaderAmzDate          = "X-Amz-Date"
	HeaderAmzContentSha256 = "X-Amz-Content-Sha256"
)
