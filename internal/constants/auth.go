package constants

// Access key shapes. Long-term user keys carry the AKIA prefix; keys minted
// for assumed-role sessions carry ASIA and only ever travel with a session
// token.
const (
	LongTermKeyPrefix  = "AKIA"
	TemporaryKeyPrefix = "ASIA"

	AccessKeyIDRandomLength = 16
	SecretAccessKeyLength   = 40
	SessionTokenBytes       = 48
)

// Authorization header components (SigV4 wire format).
const (
	AuthCredentialMarker    = "Credential="
	AuthSignedHeadersMarker = "SignedHeaders="
	AuthSignatureMarker     = "Signature="
)

// AmzDateFormat is the timestamp format carried in the X-Amz-Date header.
const AmzDateFormat = "20060102T150405Z"

// UnsignedPayload is the sentinel payload hash used by clients that opt out
// of body signing.
const UnsignedPayload = "UNSIGNED-PAYLOAD"

// Service identifiers that influence error mapping.
const (
	ServiceEC2 = "ec2"
	ServiceIAM = "iam"
	ServiceS3  = "s3"
	ServiceSTS = "sts"
)

// BcryptCost is the work factor for console login-profile passwords.
const BcryptCost = 12

// AssumedRoleSessionHours is the lifetime of an assumed-role session.
const AssumedRoleSessionHours = 1
