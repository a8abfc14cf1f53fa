package entity

import "time"

// NotFoundPolicy controls how a sync reacts to a missing remote file.
type NotFoundPolicy string

const (
	NotFoundFail           NotFoundPolicy = "Fail"
	NotFoundLogAndContinue NotFoundPolicy = "LogAndContinue"
)

// CacheMode toggles catalog resolution from the local cache only.
type CacheMode string

const (
	CacheEnable  CacheMode = "Enable"
	CacheDisable CacheMode = "Disable"
)

// ReportFormat selects the repository report rendering.
type ReportFormat string

const (
	ReportCSV      ReportFormat = "CSV"
	ReportJSON     ReportFormat = "JSON"
	ReportXML      ReportFormat = "XML"
	ReportExcelCSV ReportFormat = "ExcelCSV"
)

const DefaultLockMaxRetries = 10

// Settings are the persisted per-repository options. Zero values are
// replaced by defaults when the state file is loaded, so files written by
// older versions stay loadable without migration.
type Settings struct {
	OnRemoteFileNotFound    NotFoundPolicy
	OfflineCacheMode        CacheMode
	ReportFormat            ReportFormat
	ExclusiveLockMaxRetries int
}

// ApplyDefaults fills any zero-valued setting.
func (s *Settings) ApplyDefaults() {
	if s.OnRemoteFileNotFound == "" {
		s.OnRemoteFileNotFound = NotFoundFail
	}
	if s.OfflineCacheMode == "" {
		s.OfflineCacheMode = CacheDisable
	}
	if s.ReportFormat == "" {
		s.ReportFormat = ReportCSV
	}
	if s.ExclusiveLockMaxRetries == 0 {
		s.ExclusiveLockMaxRetries = DefaultLockMaxRetries
	}
}

// NotificationConfig holds the mail endpoint used for sync notifications.
// The password is sealed before it reaches the state file, transport is
// outside the core.
type NotificationConfig struct {
	Server    string
	Port      int
	TLS       bool
	UserName  string
	Password  string
	From      string
	FromName  string
	Addresses []string
}

// RepositoryState is the single persisted state document of one repository
// directory.
type RepositoryState struct {
	Filters        []Filter
	Settings       Settings
	Notifications  *NotificationConfig
	CreatedAt      time.Time
	CreatedBy      string
	LastModifiedAt time.Time
	ModifiedBy     string
}
