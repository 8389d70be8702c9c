package postgres

// migration is one named schema step, applied at most once.
type migration struct {
	name string
	stmt string
}

// migrations run in order. Names are recorded in vigil_migrations so a
// redeploy only applies what is new.
var migrations = []migration{
	{
		name: "001_create_errors_table",
		stmt: `
			CREATE TABLE IF NOT EXISTS vigil_errors (
				id              TEXT PRIMARY KEY,
				kind            TEXT NOT NULL,
				job_id          TEXT NOT NULL,
				source_id       TEXT NOT NULL,
				message         TEXT NOT NULL,
				occurred_at     TIMESTAMPTZ NOT NULL,
				seq             BIGINT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_vigil_errors_order
				ON vigil_errors (occurred_at ASC, seq ASC);
			CREATE INDEX IF NOT EXISTS idx_vigil_errors_kind
				ON vigil_errors (kind);
			CREATE INDEX IF NOT EXISTS idx_vigil_errors_job
				ON vigil_errors (job_id)`,
	},
	{
		name: "002_create_nodes_table",
		stmt: `
			CREATE TABLE IF NOT EXISTS vigil_nodes (
				id              TEXT PRIMARY KEY,
				hostname        TEXT NOT NULL,
				resources       JSONB NOT NULL DEFAULT '{}',
				status          TEXT NOT NULL DEFAULT 'alive',
				last_heartbeat  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				missed_count    INTEGER NOT NULL DEFAULT 0,
				registered_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_vigil_nodes_status
				ON vigil_nodes (status)`,
	},
	{
		name: "003_create_workers_table",
		stmt: `
			CREATE TABLE IF NOT EXISTS vigil_workers (
				id              TEXT PRIMARY KEY,
				node_id         TEXT NOT NULL,
				pid             INTEGER NOT NULL DEFAULT 0,
				state           TEXT NOT NULL DEFAULT 'starting',
				last_seen       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_vigil_workers_node
				ON vigil_workers (node_id);
			CREATE INDEX IF NOT EXISTS idx_vigil_workers_state
				ON vigil_workers (state)`,
	},
}
