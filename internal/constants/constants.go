package constants

// Application
const (
	AppName        = "nimbus"
	AppDisplayName = "Nimbus"
)

// Account / region defaults. Nimbus emulates a single account, the same
// way the real services hand out a 12-digit account id.
const (
	DefaultAccountID = "123456789012"
	DefaultRegion    = "us-east-1"
	DefaultPort      = 5000
	DefaultLogLevel  = "INFO"
)

// Paths
const (
	ConfigDir   = ".config/nimbus"
	ConfigFile  = "config.yaml"
	InternalDir = ".internal"
	DirectoryDB = "directory.db"
	LogsDir     = "logs"
)

// ARN formats
const (
	UserARNFormat        = "arn:aws:iam::%s:user/%s"
	GroupARNFormat       = "arn:aws:iam::%s:group/%s"
	RoleARNFormat        = "arn:aws:iam::%s:role/%s"
	PolicyARNFormat      = "arn:aws:iam::%s:policy/%s"
	AssumedRoleARNFormat = "arn:aws:sts::%s:assumed-role/%s/%s"
)
