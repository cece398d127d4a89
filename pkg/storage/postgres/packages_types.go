package postgres

import (
	"time"

	"github.com/kellnr/kellnr/pkg/index"
)

// PublishMetadata is the publish-time input for a new version, matching
// the HTTP boundary's publish payload shape (spec.md §6).
type PublishMetadata struct {
	Name          string
	Vers          string
	Deps          []index.Dependency
	Features      map[string][]string
	Authors       []string
	Description   *string
	Documentation *string
	Homepage      *string
	Readme        *string
	ReadmeFile    *string
	Keywords      []string
	Categories    []string
	License       *string
	LicenseFile   *string
	Repository    *string
	Badges        []string
	Links         *string
}

// CrateVersionData is one version's full stored metadata.
type CrateVersionData struct {
	Version       string
	CreatedAt     time.Time
	Downloads     int64
	Yanked        bool
	Checksum      string
	Deps          []index.Dependency
	Features      map[string][]string
	Authors       []string
	Description   *string
	Documentation *string
	Homepage      *string
	Readme        *string
	Keywords      []string
	Categories    []string
	License       *string
	LicenseFile   *string
	Repository    *string
	Links         *string
}

// CrateData is the aggregate view of a package: owners and top-level
// metadata drawn from its latest version, plus every stored version in
// descending semantic-version order.
type CrateData struct {
	Name          string
	Owners        []string
	MaxVersion    string
	LastUpdated   time.Time
	Authors       []string
	Keywords      []string
	Categories    []string
	Description   *string
	Documentation *string
	Homepage      *string
	Readme        *string
	License       *string
	LicenseFile   *string
	Repository    *string
	Links         *string
	Versions      []CrateVersionData
}

// CrateSummary is one row of get_crate_summaries.
type CrateSummary struct {
	Name           string
	MaxVersion     string
	TotalDownloads int64
	LastUpdated    time.Time
}

// CrateOverview is one row of get_crate_overview_list / search_in_crate_name.
type CrateOverview struct {
	Name           string
	Version        string
	Date           time.Time
	TotalDownloads int64
}
