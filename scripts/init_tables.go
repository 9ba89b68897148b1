package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	prefix := os.Getenv("TABLE_PREFIX")
	if prefix == "" {
		prefix = env + "_"
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = db.Close() }() // Error ignored: script exiting

	schemaSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]sprojects (
			id UUID PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			description TEXT,
			local_path TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ,
			UNIQUE (owner_id, slug)
		);

		CREATE TABLE IF NOT EXISTS %[1]sproposals (
			id UUID PRIMARY KEY,
			project_id UUID NOT NULL REFERENCES %[1]sprojects(id),
			author_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			materialized_path TEXT,
			transition_version BIGINT NOT NULL DEFAULT 0,
			transition_claimed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			retired_at TIMESTAMPTZ,
			UNIQUE (project_id, name)
		);

		CREATE TABLE IF NOT EXISTS %[1]sproposal_contents (
			id UUID PRIMARY KEY,
			proposal_id UUID NOT NULL REFERENCES %[1]sproposals(id),
			file_path TEXT NOT NULL,
			content TEXT NOT NULL,
			version BIGINT NOT NULL,
			updated_by TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (proposal_id, file_path)
		);

		CREATE TABLE IF NOT EXISTS %[1]scontent_versions (
			id UUID PRIMARY KEY,
			proposal_id UUID NOT NULL REFERENCES %[1]sproposals(id),
			file_path TEXT NOT NULL,
			version BIGINT NOT NULL,
			content TEXT NOT NULL,
			author_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			change_reason TEXT,
			UNIQUE (proposal_id, file_path, version)
		);

		CREATE TABLE IF NOT EXISTS %[1]sreview_comments (
			id UUID PRIMARY KEY,
			proposal_id UUID NOT NULL REFERENCES %[1]sproposals(id),
			reviewer_id TEXT NOT NULL,
			file_path TEXT NOT NULL,
			line_start INTEGER,
			line_end INTEGER,
			content TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			author_response TEXT,
			selected_for_iteration BOOLEAN NOT NULL DEFAULT FALSE,
			parent_id UUID REFERENCES %[1]sreview_comments(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			resolved_at TIMESTAMPTZ,
			resolved_by TEXT
		);

		CREATE TABLE IF NOT EXISTS %[1]saudit_events (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			actor_id TEXT NOT NULL,
			action TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			old_value TEXT,
			new_value TEXT
		);

		CREATE TABLE IF NOT EXISTS %[1]sllm_usage (
			id UUID PRIMARY KEY,
			actor_id TEXT NOT NULL,
			proposal_id UUID,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			input_tokens BIGINT NOT NULL DEFAULT 0,
			output_tokens BIGINT NOT NULL DEFAULT 0,
			total_tokens BIGINT NOT NULL DEFAULT 0,
			operation TEXT NOT NULL,
			success BOOLEAN NOT NULL DEFAULT TRUE,
			error_message TEXT,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS %[1]sproposals_project_idx ON %[1]sproposals (project_id);
		CREATE INDEX IF NOT EXISTS %[1]scomments_proposal_idx ON %[1]sreview_comments (proposal_id);
		CREATE INDEX IF NOT EXISTS %[1]saudit_resource_idx ON %[1]saudit_events (resource_type, resource_id);
		CREATE INDEX IF NOT EXISTS %[1]sllm_usage_proposal_idx ON %[1]sllm_usage (proposal_id);
		CREATE INDEX IF NOT EXISTS %[1]sllm_usage_actor_idx ON %[1]sllm_usage (actor_id);
	`, prefix)

	if _, err := db.Exec(schemaSQL); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	fmt.Printf("All tables created successfully (prefix: %s)\n", prefix)
}
