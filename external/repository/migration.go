package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE meeting_status AS ENUM ('active', 'completed'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN CREATE TYPE artifact_kind AS ENUM ('task', 'summary'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN CREATE TYPE dispatch_state AS ENUM ('not_started', 'in_flight', 'succeeded', 'failed'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS meetings (
		id TEXT PRIMARY KEY,
		platform TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		status meeting_status NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS participants (
		meeting_id TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
		participant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		platform_id TEXT NOT NULL DEFAULT '',
		is_host BOOLEAN NOT NULL DEFAULT FALSE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		joined_at TIMESTAMPTZ NOT NULL,
		left_at TIMESTAMPTZ,
		PRIMARY KEY (meeting_id, participant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS transcript_segments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		meeting_id TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		speaker TEXT NOT NULL DEFAULT '',
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		seq INTEGER NOT NULL,
		spoken_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(meeting_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transcript_segments_meeting ON transcript_segments (meeting_id, seq)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		id UUID PRIMARY KEY,
		meeting_id TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
		kind artifact_kind NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		assignee TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_artifacts_meeting ON artifacts (meeting_id)`,
	`CREATE TABLE IF NOT EXISTS dispatch_statuses (
		artifact_id UUID NOT NULL REFERENCES artifacts(id) ON DELETE CASCADE,
		target TEXT NOT NULL,
		state dispatch_state NOT NULL DEFAULT 'not_started',
		external_id TEXT NOT NULL DEFAULT '',
		external_url TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (artifact_id, target)
	)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
