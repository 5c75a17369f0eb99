// Package config provides the waterflow settings file: repository identity,
// gating requirements, queue behavior and collaborator credentials.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Settings represents the complete waterflow configuration
type Settings struct {
	Repository RepositoryConfig `mapstructure:"repository"`
	Gating     GatingConfig     `mapstructure:"gating"`
	Build      BuildConfig      `mapstructure:"build"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Merge      MergeConfig      `mapstructure:"merge"`
	Jira       JiraConfig       `mapstructure:"jira"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// RepositoryConfig identifies the repository under management
type RepositoryConfig struct {
	// CloneURL is the git URL used for the working clone
	CloneURL string `mapstructure:"clone_url"`
	// WorkDir is where the exclusive working clone lives; reset per job
	WorkDir string `mapstructure:"work_dir"`
	// Owner and Name identify the repository on the git host
	Owner string `mapstructure:"owner"`
	Name  string `mapstructure:"name"`
	// DestinationPrefixes are the branch prefixes waterflow manages as merge
	// destinations. Anything else is not our job.
	DestinationPrefixes []string `mapstructure:"destination_prefixes"`
}

// GatingConfig controls the approval gates
type GatingConfig struct {
	// RequiredPeerApprovals is the number of approvals from non-author reviewers
	RequiredPeerApprovals int `mapstructure:"required_peer_approvals"`
	// NeedAuthorApproval requires the author to approve their own pull request
	NeedAuthorApproval bool `mapstructure:"need_author_approval"`
	// RequiredLeaderApprovals is the number of approvals that must come from leaders
	RequiredLeaderApprovals int `mapstructure:"required_leader_approvals"`
	// Leaders are the usernames whose approvals count as leader approvals
	Leaders []string `mapstructure:"leaders"`
	// Admins may use privileged bypass options
	Admins []string `mapstructure:"admins"`
}

// BuildConfig controls the build-status gate
type BuildConfig struct {
	// Key is the build-status key checked on integration branch tips
	Key string `mapstructure:"key"`
}

// QueueConfig controls the merge queue
type QueueConfig struct {
	// Enabled defers gated merges into the multi-lane queue
	Enabled bool `mapstructure:"enabled"`
}

// MergeConfig controls the merge machinery
type MergeConfig struct {
	// MaxCommitsBehind is the source/destination divergence threshold beyond
	// which a source branch is considered too old. 0 disables the check.
	MaxCommitsBehind int `mapstructure:"max_commits_behind"`
	// DisableOctopus forces the consecutive strategy everywhere
	DisableOctopus bool `mapstructure:"disable_octopus"`
}

// JiraConfig controls the issue-tracker gate
type JiraConfig struct {
	// Enabled turns the issue-tracker consistency check on
	Enabled bool `mapstructure:"enabled"`
	// URL is the base URL of the Jira instance
	URL string `mapstructure:"url"`
	// Username and APIToken authenticate API reads
	Username string `mapstructure:"username"`
	APIToken string `mapstructure:"api_token"`
	// ProjectKeys are the accepted issue projects; empty accepts any
	ProjectKeys []string `mapstructure:"project_keys"`
	// IgnoredPrefixes are feature-branch prefixes exempted from the check
	IgnoredPrefixes []string `mapstructure:"ignored_prefixes"`
}

// LoggingConfig controls the rotated file log
type LoggingConfig struct {
	// File is the log file path; empty logs to console only
	File string `mapstructure:"file"`
}

// Default returns the default settings
func Default() *Settings {
	return &Settings{
		Repository: RepositoryConfig{
			WorkDir:             ".waterflow/clone",
			DestinationPrefixes: []string{"development", "stabilization", "hotfix"},
		},
		Gating: GatingConfig{
			RequiredPeerApprovals: 2,
			NeedAuthorApproval:    true,
		},
		Build: BuildConfig{
			Key: "pre-merge",
		},
		Queue: QueueConfig{
			Enabled: true,
		},
		Merge: MergeConfig{
			MaxCommitsBehind: 100,
		},
		Jira: JiraConfig{
			IgnoredPrefixes: []string{"documentation", "dependabot"},
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("repository.work_dir", defaults.Repository.WorkDir)
	viper.SetDefault("repository.destination_prefixes", defaults.Repository.DestinationPrefixes)
	viper.SetDefault("gating.required_peer_approvals", defaults.Gating.RequiredPeerApprovals)
	viper.SetDefault("gating.need_author_approval", defaults.Gating.NeedAuthorApproval)
	viper.SetDefault("gating.required_leader_approvals", defaults.Gating.RequiredLeaderApprovals)
	viper.SetDefault("build.key", defaults.Build.Key)
	viper.SetDefault("queue.enabled", defaults.Queue.Enabled)
	viper.SetDefault("merge.max_commits_behind", defaults.Merge.MaxCommitsBehind)
	viper.SetDefault("merge.disable_octopus", defaults.Merge.DisableOctopus)
	viper.SetDefault("jira.enabled", defaults.Jira.Enabled)
	viper.SetDefault("jira.ignored_prefixes", defaults.Jira.IgnoredPrefixes)
}

// Load reads the settings file and environment into a Settings value.
// The file is optional; environment variables use the WATERFLOW_ prefix.
func Load(path string) (*Settings, error) {
	SetDefaults()

	viper.SetEnvPrefix("WATERFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
		}
	} else {
		viper.SetConfigName("waterflow")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.waterflow")
		if err := viper.ReadInConfig(); err != nil {
			// Settings file is optional; defaults and env apply
			var notFound viper.ConfigFileNotFoundError
			if ok := asConfigFileNotFound(err, &notFound); !ok {
				return nil, fmt.Errorf("failed to read settings: %w", err)
			}
		}
	}

	var settings Settings
	if err := viper.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return &settings, nil
}

func asConfigFileNotFound(err error, target *viper.ConfigFileNotFoundError) bool {
	if e, ok := err.(viper.ConfigFileNotFoundError); ok {
		*target = e
		return true
	}
	return false
}

// Validate checks the settings for structural problems. Malformed settings are
// an internal error: surfaced with full detail, never silently recovered.
func (s *Settings) Validate() error {
	if s.Gating.RequiredPeerApprovals < 0 {
		return fmt.Errorf("gating.required_peer_approvals must be >= 0, got %d", s.Gating.RequiredPeerApprovals)
	}
	if s.Gating.RequiredLeaderApprovals > 0 && len(s.Gating.Leaders) == 0 {
		return fmt.Errorf("gating.required_leader_approvals is %d but gating.leaders is empty", s.Gating.RequiredLeaderApprovals)
	}
	if s.Merge.MaxCommitsBehind < 0 {
		return fmt.Errorf("merge.max_commits_behind must be >= 0, got %d", s.Merge.MaxCommitsBehind)
	}
	if len(s.Repository.DestinationPrefixes) == 0 {
		return fmt.Errorf("repository.destination_prefixes must not be empty")
	}
	if s.Jira.Enabled && s.Jira.URL == "" {
		return fmt.Errorf("jira.enabled is true but jira.url is empty")
	}
	return nil
}

// IsAdmin reports whether the given username may use privileged options
func (s *Settings) IsAdmin(username string) bool {
	for _, admin := range s.Gating.Admins {
		if admin == username {
			return true
		}
	}
	return false
}

// IsLeader reports whether the given username counts as a leader
func (s *Settings) IsLeader(username string) bool {
	for _, leader := range s.Gating.Leaders {
		if leader == username {
			return true
		}
	}
	return false
}
