package constants

// Audit outcomes for authentication decisions.
const (
	AuditOutcomeAllowed = "allowed"
	AuditOutcomeDenied  = "denied"
	AuditOutcomeError   = "error"
)

// Audit flavor labels.
const (
	AuditFlavorGeneric = "generic"
	AuditFlavorS3      = "s3"
)

// Audit log size management.
const (
	DefaultAuditMaxLogSizeBytes = 104857600 // 100MB
	DefaultAuditPurgePercentage = 20
)
