package cli

import (
	"context"
	"fmt"
	"os"

	"waterflow.dev/waterflow/internal/config"
	"waterflow.dev/waterflow/internal/git"
	"waterflow.dev/waterflow/internal/githost"
	"waterflow.dev/waterflow/internal/jira"
	"waterflow.dev/waterflow/internal/output"
)

// deps holds the collaborators a command needs.
type deps struct {
	settings *config.Settings
	repo     git.Repo
	host     githost.Client
	tracker  jira.Tracker
	splog    *output.Splog
}

func buildDeps(ctx context.Context, configPath string) (*deps, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	logFile := settings.Logging.File
	if logFile == "" {
		logFile = output.GetLogFilePath()
	}
	splog, err := output.NewSplogWithConfig(logFile)
	if err != nil {
		return nil, err
	}

	token := os.Getenv("WATERFLOW_GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	host := githost.NewGitHubClient(ctx, token, settings.Repository.Owner, settings.Repository.Name)

	d := &deps{
		settings: settings,
		repo:     git.NewLocalRepo(settings.Repository.CloneURL, settings.Repository.WorkDir),
		host:     host,
		splog:    splog,
	}
	if settings.Jira.Enabled {
		d.tracker = jira.NewClient(settings.Jira.URL, settings.Jira.Username, settings.Jira.APIToken)
	}
	return d, nil
}
