package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/jgivc/paqmirror/internal/entity"
)

// Wire representation of the repository state file. Key spelling is part of
// the on-disk contract and predates this implementation, keep it as is.

const stateFileName = "repository.json"

const setSeparator = ","

type stateFile struct {
	Filters       []filterJSON       `json:"Filters"`
	Settings      settingsJSON       `json:"settings"`
	Notifications *notificationsJSON `json:"Notifications,omitempty"`
	DateCreated   time.Time          `json:"DateCreated"`
	CreatedBy     string             `json:"CreatedBy"`
	DateModified  time.Time          `json:"DateLastModified"`
	ModifiedBy    string             `json:"ModifiedBy"`
}

type filterJSON struct {
	Platform        string `json:"platform"`
	OperatingSystem string `json:"OperatingSystem"`
	Category        string `json:"Category"`
	ReleaseType     string `json:"ReleaseType"`
	Characteristic  string `json:"characteristic"`
	PreferLTSC      bool   `json:"preferLTSC"`
}

type settingsJSON struct {
	OnRemoteFileNotFound    string `json:"OnRemoteFileNotFound,omitempty"`
	ExclusiveLockMaxRetries int    `json:"ExclusiveLockMaxRetries,omitempty"`
	OfflineCacheMode        string `json:"OfflineCacheMode,omitempty"`
	RepositoryReport        string `json:"RepositoryReport,omitempty"`
}

type notificationsJSON struct {
	Server    string   `json:"server"`
	Port      int      `json:"port"`
	TLS       bool     `json:"tls"`
	UserName  string   `json:"UserName"`
	Password  string   `json:"Password"`
	From      string   `json:"from"`
	FromName  string   `json:"fromname"`
	Addresses []string `json:"addresses"`
}

func filterToJSON(f entity.Filter) filterJSON {
	return filterJSON{
		Platform:        f.Platform,
		OperatingSystem: f.OS.String(),
		Category:        joinCategories(f.Categories),
		ReleaseType:     joinReleaseTypes(f.ReleaseTypes),
		Characteristic:  joinCharacteristics(f.Characteristics),
		PreferLTSC:      f.PreferLTSC,
	}
}

func filterFromJSON(j filterJSON) (entity.Filter, error) {
	os, err := entity.ParseOSSpec(j.OperatingSystem)
	if err != nil {
		return entity.Filter{}, fmt.Errorf("filter for platform %s: %w", j.Platform, err)
	}

	f := entity.Filter{
		Platform:   strings.ToLower(j.Platform),
		OS:         os,
		PreferLTSC: j.PreferLTSC,
	}

	for _, v := range splitSet(j.Category) {
		f.Categories = append(f.Categories, entity.Category(v))
	}
	for _, v := range splitSet(j.ReleaseType) {
		f.ReleaseTypes = append(f.ReleaseTypes, entity.ReleaseType(v))
	}
	for _, v := range splitSet(j.Characteristic) {
		f.Characteristics = append(f.Characteristics, entity.Characteristic(v))
	}

	f.Normalize()

	return f, nil
}

func splitSet(s string) []string {
	var out []string
	for _, v := range strings.Split(s, setSeparator) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}

	return out
}

func joinCategories(values []entity.Category) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = string(v)
	}

	return strings.Join(s, setSeparator)
}

func joinReleaseTypes(values []entity.ReleaseType) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = string(v)
	}

	return strings.Join(s, setSeparator)
}

func joinCharacteristics(values []entity.Characteristic) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = string(v)
	}

	return strings.Join(s, setSeparator)
}

func stateToFile(st *entity.RepositoryState, sealer Sealer) (*stateFile, error) {
	out := &stateFile{
		Filters: make([]filterJSON, 0, len(st.Filters)),
		Settings: settingsJSON{
			OnRemoteFileNotFound:    string(st.Settings.OnRemoteFileNotFound),
			ExclusiveLockMaxRetries: st.Settings.ExclusiveLockMaxRetries,
			OfflineCacheMode:        string(st.Settings.OfflineCacheMode),
			RepositoryReport:        string(st.Settings.ReportFormat),
		},
		DateCreated:  st.CreatedAt,
		CreatedBy:    st.CreatedBy,
		DateModified: st.LastModifiedAt,
		ModifiedBy:   st.ModifiedBy,
	}

	for _, f := range st.Filters {
		out.Filters = append(out.Filters, filterToJSON(f))
	}

	if st.Notifications != nil {
		sealed, err := sealer.Seal(st.Notifications.Password)
		if err != nil {
			return nil, fmt.Errorf("cannot seal notification password: %w", err)
		}

		out.Notifications = &notificationsJSON{
			Server:    st.Notifications.Server,
			Port:      st.Notifications.Port,
			TLS:       st.Notifications.TLS,
			UserName:  st.Notifications.UserName,
			Password:  sealed,
			From:      st.Notifications.From,
			FromName:  st.Notifications.FromName,
			Addresses: st.Notifications.Addresses,
		}
	}

	return out, nil
}

func stateFromFile(in *stateFile, sealer Sealer) (*entity.RepositoryState, error) {
	st := &entity.RepositoryState{
		Settings: entity.Settings{
			OnRemoteFileNotFound:    entity.NotFoundPolicy(in.Settings.OnRemoteFileNotFound),
			OfflineCacheMode:        entity.CacheMode(in.Settings.OfflineCacheMode),
			ReportFormat:            entity.ReportFormat(in.Settings.RepositoryReport),
			ExclusiveLockMaxRetries: in.Settings.ExclusiveLockMaxRetries,
		},
		CreatedAt:      in.DateCreated,
		CreatedBy:      in.CreatedBy,
		LastModifiedAt: in.DateModified,
		ModifiedBy:     in.ModifiedBy,
	}
	st.Settings.ApplyDefaults()

	for _, j := range in.Filters {
		f, err := filterFromJSON(j)
		if err != nil {
			return nil, err
		}
		st.Filters = append(st.Filters, f)
	}

	if in.Notifications != nil {
		password, err := sealer.Open(in.Notifications.Password)
		if err != nil {
			return nil, fmt.Errorf("cannot open notification password: %w", err)
		}

		st.Notifications = &entity.NotificationConfig{
			Server:    in.Notifications.Server,
			Port:      in.Notifications.Port,
			TLS:       in.Notifications.TLS,
			UserName:  in.Notifications.UserName,
			Password:  password,
			From:      in.Notifications.From,
			FromName:  in.Notifications.FromName,
			Addresses: in.Notifications.Addresses,
		}
	}

	return st, nil
}
