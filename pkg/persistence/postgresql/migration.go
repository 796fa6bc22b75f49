package postgresql

// migrations returns the ordered schema migrations for the flow engine
// tables. Graph structure and per-run variable state are stored as JSONB so
// flow edits never require a schema change.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS flows (
				id TEXT PRIMARY KEY,
				team_id TEXT NOT NULL,
				name TEXT NOT NULL,
				trigger_type TEXT NOT NULL,
				trigger_config JSONB NOT NULL DEFAULT '{}',
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				variables JSONB NOT NULL DEFAULT '{}',
				active BOOLEAN NOT NULL DEFAULT FALSE,
				version INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_flows_active ON flows (active);
			CREATE INDEX IF NOT EXISTS idx_flows_team_id ON flows (team_id);
			CREATE INDEX IF NOT EXISTS idx_flows_trigger_type ON flows (trigger_type);

			CREATE TABLE IF NOT EXISTS executions (
				id TEXT PRIMARY KEY,
				flow_id TEXT NOT NULL,
				team_id TEXT NOT NULL,
				contact_id TEXT NOT NULL,
				conversation_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				current_node_id TEXT NOT NULL DEFAULT '',
				step_seq INTEGER NOT NULL DEFAULT 0,
				variables JSONB NOT NULL DEFAULT '{}',
				step_results JSONB NOT NULL DEFAULT '{}',
				test_mode BOOLEAN NOT NULL DEFAULT FALSE,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_activity_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				error TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX IF NOT EXISTS idx_executions_flow_id ON executions (flow_id);
			CREATE INDEX IF NOT EXISTS idx_executions_contact_id ON executions (contact_id);
			CREATE INDEX IF NOT EXISTS idx_executions_status ON executions (status);
		`,
	}
}
