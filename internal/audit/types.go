// Package audit records every authentication decision in an append-only
// trail. Entries form a hash chain so tampering with past decisions is
// detectable.
package audit

// Entry is one recorded authentication decision.
type Entry struct {
	ID           int64  `json:"id"`
	Timestamp    int64  `json:"timestamp"`
	RequestID    string `json:"request_id"`
	Flavor       string `json:"flavor"`
	PrincipalARN string `json:"principal_arn,omitempty"`
	Action       string `json:"action,omitempty"`
	Resource     string `json:"resource,omitempty"`
	Outcome      string `json:"outcome"`
	ErrorCode    string `json:"error_code,omitempty"`
	EntryHash    string `json:"entry_hash"`
}

// Filter narrows Query results.
type Filter struct {
	Outcome string
	Limit   int
}
