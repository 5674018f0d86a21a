package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250601-000000",
		Description: "Initial schema",
		Up: []string{
			// API keys - issued externally, authenticated by SHA-256 hash
			`CREATE TABLE IF NOT EXISTS api_keys (
				id TEXT PRIMARY KEY,
				owner TEXT NOT NULL,
				key_hash TEXT UNIQUE NOT NULL,
				key_prefix TEXT NOT NULL,
				tier TEXT NOT NULL DEFAULT 'standard',
				remaining_credits INTEGER NOT NULL DEFAULT 0 CHECK (remaining_credits >= 0),
				is_active INTEGER NOT NULL DEFAULT 1,
				last_used_at TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_api_keys_key_hash ON api_keys(key_hash)`,

			// Jobs - asynchronous extraction lifecycle
			`CREATE TABLE IF NOT EXISTS jobs (
				id TEXT PRIMARY KEY,
				api_key_id TEXT,
				schedule_id TEXT,
				status TEXT NOT NULL DEFAULT 'queued',
				url TEXT NOT NULL,
				params_json TEXT NOT NULL,
				webhook_url TEXT,
				webhook_secret_encrypted TEXT,
				result_path TEXT,
				token_usage INTEGER NOT NULL DEFAULT 0,
				latency_ms INTEGER NOT NULL DEFAULT 0,
				blocked INTEGER NOT NULL DEFAULT 0,
				error_msg TEXT,
				started_at TEXT,
				completed_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_api_key_id ON jobs(api_key_id)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`,

			// Schedules - recurring extractions
			`CREATE TABLE IF NOT EXISTS schedules (
				id TEXT PRIMARY KEY,
				api_key_id TEXT,
				cron TEXT NOT NULL,
				url TEXT NOT NULL,
				params_json TEXT NOT NULL,
				webhook_url TEXT,
				webhook_secret_encrypted TEXT,
				is_active INTEGER NOT NULL DEFAULT 1,
				next_run_at TEXT NOT NULL,
				last_run_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules(is_active, next_run_at)`,

			// Cache entries - content-addressed result cache
			`CREATE TABLE IF NOT EXISTS cache_entries (
				fingerprint TEXT PRIMARY KEY,
				result_path TEXT NOT NULL,
				token_usage INTEGER NOT NULL DEFAULT 0,
				content_chars INTEGER NOT NULL DEFAULT 0,
				hit_count INTEGER NOT NULL DEFAULT 0,
				last_hit_at TEXT,
				created_at TEXT NOT NULL,
				expires_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_cache_expires_at ON cache_entries(expires_at)`,

			// Idempotency entries - stored responses for replay (48h TTL)
			`CREATE TABLE IF NOT EXISTS idempotency_entries (
				key TEXT PRIMARY KEY,
				body_hash TEXT NOT NULL,
				status_code INTEGER NOT NULL,
				response TEXT NOT NULL,
				created_at TEXT NOT NULL,
				expires_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_idempotency_expires_at ON idempotency_entries(expires_at)`,

			// Scrape logs - append-only record of extraction attempts
			`CREATE TABLE IF NOT EXISTS scrape_logs (
				id TEXT PRIMARY KEY,
				api_key_id TEXT,
				url TEXT NOT NULL,
				fields_json TEXT,
				schema_json TEXT,
				token_usage INTEGER NOT NULL DEFAULT 0,
				latency_ms INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL,
				error_msg TEXT,
				content_path TEXT,
				screenshot_path TEXT,
				blocked INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_scrape_logs_api_key_id ON scrape_logs(api_key_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_scrape_logs_created_at ON scrape_logs(created_at)`,

			// Event logs - append-only semantic events
			`CREATE TABLE IF NOT EXISTS event_logs (
				id TEXT PRIMARY KEY,
				api_key_id TEXT,
				event TEXT NOT NULL,
				meta_json TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_event_logs_created_at ON event_logs(created_at)`,

			// Rate limits - fixed windows for the distributed limiter
			`CREATE TABLE IF NOT EXISTS rate_limits (
				identifier TEXT PRIMARY KEY,
				request_count INTEGER NOT NULL DEFAULT 0,
				window_end TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_rate_limits_window_end ON rate_limits(window_end)`,

			// Webhook dead letters - deliveries that exhausted retries
			`CREATE TABLE IF NOT EXISTS webhook_dead_letters (
				id TEXT PRIMARY KEY,
				job_id TEXT NOT NULL,
				url TEXT NOT NULL,
				payload TEXT NOT NULL,
				last_error TEXT NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_dead_letters_job_id ON webhook_dead_letters(job_id)`,
		},
	})
}
