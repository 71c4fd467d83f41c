package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"questboard/internal/config"
	"questboard/internal/domain"
	"questboard/internal/repo"
)

// ResolveOrgAndConfig picks the active org and ensures an org + config exist
// in the DB, seeding defaults if missing. It prefers the override, then the
// workspace config file, then a single-org DB.
func ResolveOrgAndConfig(ctx context.Context, workspace, orgOverride string, r repo.Repo) (string, *config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}

	orgID := orgOverride
	if orgID == "" && fileCfg != nil {
		orgID = fileCfg.Org.ID
	}
	if orgID == "" {
		if o, err := r.SingleOrg(ctx); err == nil {
			orgID = o.ID
		} else {
			return "", nil, fmt.Errorf("org not specified; use --org or add questboard.yml")
		}
	}

	seedCfg := fileCfg
	if seedCfg == nil {
		seedCfg = config.Default(orgID)
	}

	if _, err := r.GetOrg(ctx, orgID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createOrg(ctx, r, orgID, seedCfg); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetOrgConfig(ctx, orgID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertOrgConfig(ctx, orgID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed org config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Org.ID = orgID
	return orgID, cfg, nil
}

// createOrg inserts a minimal org footprint using the seed config.
func createOrg(ctx context.Context, r repo.Repo, orgID string, seedCfg *config.Config) error {
	if seedCfg == nil {
		seedCfg = config.Default(orgID)
	}
	name := seedCfg.Org.Name
	if name == "" {
		name = orgID
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	o := domain.Org{
		ID:           orgID,
		Name:         name,
		SlackEnabled: seedCfg.Notifications.Slack.Enabled,
		SlackChannel: seedCfg.Notifications.Slack.Channel,
		EmailEnabled: seedCfg.Notifications.Email.Enabled,
		CreatedAt:    time.Now().UTC().Format(domain.TimeFormat),
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO orgs(id,name,slack_enabled,slack_channel,email_enabled,created_at) VALUES (?,?,?,?,?,?)`,
		o.ID, o.Name, boolToInt(o.SlackEnabled), o.SlackChannel, boolToInt(o.EmailEnabled), o.CreatedAt); err != nil {
		return fmt.Errorf("insert org: %w", err)
	}
	if err := r.UpsertOrgConfigTx(ctx, tx, orgID, seedCfg); err != nil {
		return fmt.Errorf("insert org config: %w", err)
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
