// Package postgres implements the mirror-store repositories over
// PostgreSQL, grounded on adapter/out/persistence/worker_email_adapter.go
// and worker_oauth_adapter.go's sqlx row-struct + upsert-on-conflict
// conventions, reworked from the teacher's per-feature CRUD adapters
// (email, contact, calendar, ...) onto the five tables this mirror
// needs: users, mail_accounts, messages, email_fts (filled by a trigger
// on messages), and attachments.
package postgres

import (
	"github.com/jmoiron/sqlx"

	"mailmirror/core/port/out"
)

// ErrNotFound and ErrDuplicate are the same sentinels core services
// check for via the out package; aliased here so this package's own
// GetContext/ExecContext call sites read naturally.
var (
	ErrNotFound  = out.ErrNotFound
	ErrDuplicate = out.ErrDuplicate
)

// DB wraps the shared connection pool every repository in this package
// is constructed from.
type DB struct {
	*sqlx.DB
}

func Open(db *sqlx.DB) *DB {
	return &DB{DB: db}
}

// Schema is the DDL the operator applies before first run. It is not
// executed automatically: migrations are the deployment's concern, not
// the application's.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id uuid PRIMARY KEY,
	email text NOT NULL UNIQUE,
	password_hash text NOT NULL DEFAULT '',
	external_id text NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS mail_accounts (
	id uuid PRIMARY KEY,
	user_id uuid NOT NULL REFERENCES users(id),
	email text NOT NULL,
	provider text NOT NULL,
	auth_mode text NOT NULL,

	encrypted_password text NOT NULL DEFAULT '',
	imap_host text NOT NULL DEFAULT '',
	imap_port int NOT NULL DEFAULT 0,

	encrypted_access_token text NOT NULL DEFAULT '',
	encrypted_refresh_token text NOT NULL DEFAULT '',
	token_expires_at timestamptz,

	synced_folders jsonb NOT NULL DEFAULT '[]',
	last_fetched_uid bigint NOT NULL DEFAULT 0,
	uid_validity jsonb NOT NULL DEFAULT '{}',
	graph_folder_ids jsonb NOT NULL DEFAULT '{}',
	graph_delta_links jsonb NOT NULL DEFAULT '{}',

	last_synced_at timestamptz,
	created_at timestamptz NOT NULL DEFAULT now(),

	UNIQUE (user_id, email)
);

CREATE TABLE IF NOT EXISTS messages (
	id uuid PRIMARY KEY,
	account_id uuid NOT NULL REFERENCES mail_accounts(id) ON DELETE CASCADE,
	uid bigint NOT NULL,
	folder text NOT NULL,

	provider_message_id text NOT NULL DEFAULT '',
	thread_key text NOT NULL DEFAULT '',

	from_address text NOT NULL DEFAULT '',
	to_addresses jsonb NOT NULL DEFAULT '[]',

	subject text NOT NULL DEFAULT '',
	body_preview text NOT NULL DEFAULT '',

	is_read boolean NOT NULL DEFAULT false,
	received_at timestamptz NOT NULL,
	fetched_at timestamptz NOT NULL DEFAULT now(),
	deleted_at timestamptz,

	UNIQUE (account_id, uid, folder)
);

CREATE INDEX IF NOT EXISTS idx_messages_account_folder ON messages (account_id, folder) WHERE deleted_at IS NULL;

-- email_fts is a separate table, one row per message, soft-deleted ones
-- included (search filters on messages.deleted_at) (§4.5,
-- §6 persisted state layout), not an inline column: the trigger below
-- upserts into it so a hard delete of the Message cascades the FTS row
-- away instead of leaving the vector column to the owning row's own
-- lifecycle.
CREATE TABLE IF NOT EXISTS email_fts (
	message_id uuid PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
	tsv tsvector NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_email_fts_tsv ON email_fts USING GIN (tsv);

CREATE OR REPLACE FUNCTION email_fts_upsert() RETURNS trigger AS $$
BEGIN
	INSERT INTO email_fts (message_id, tsv)
	VALUES (
		NEW.id,
		setweight(to_tsvector('english', coalesce(NEW.subject, '')), 'A') ||
		setweight(to_tsvector('english', coalesce(NEW.from_address, '')), 'B') ||
		setweight(to_tsvector('english', coalesce(NEW.body_preview, '')), 'C')
	)
	ON CONFLICT (message_id) DO UPDATE SET tsv = EXCLUDED.tsv;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS email_fts_trigger ON messages;
CREATE TRIGGER email_fts_trigger AFTER INSERT OR UPDATE ON messages
	FOR EACH ROW EXECUTE FUNCTION email_fts_upsert();

CREATE TABLE IF NOT EXISTS attachments (
	id uuid PRIMARY KEY,
	message_id uuid NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	filename text NOT NULL,
	content_type text NOT NULL DEFAULT '',
	size bigint NOT NULL DEFAULT 0,
	storage_url text NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL DEFAULT now()
);
`
