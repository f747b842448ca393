package store

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS repositories (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		path        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		files       TEXT NOT NULL DEFAULT '[]',
		file_count  INTEGER NOT NULL DEFAULT 0,
		indexed     BOOLEAN NOT NULL DEFAULT 0,
		analyzed_at TEXT NOT NULL,
		branch      TEXT NOT NULL DEFAULT '',
		commit_hash TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS snippets (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		repository_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
		file_path     TEXT NOT NULL,
		code          TEXT NOT NULL,
		name          TEXT,
		start_line    INTEGER,
		end_line      INTEGER,
		language      TEXT NOT NULL DEFAULT 'text'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snippets_repository ON snippets(repository_id)`,
	`CREATE TABLE IF NOT EXISTS search_history (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		query        TEXT NOT NULL,
		result_count INTEGER NOT NULL,
		searched_at  TEXT NOT NULL
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS repositories (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		path        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		files       TEXT NOT NULL DEFAULT '[]',
		file_count  INTEGER NOT NULL DEFAULT 0,
		indexed     BOOLEAN NOT NULL DEFAULT FALSE,
		analyzed_at TEXT NOT NULL,
		branch      TEXT NOT NULL DEFAULT '',
		commit_hash TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS snippets (
		id            BIGSERIAL PRIMARY KEY,
		repository_id BIGINT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
		file_path     TEXT NOT NULL,
		code          TEXT NOT NULL,
		name          TEXT,
		start_line    INTEGER,
		end_line      INTEGER,
		language      TEXT NOT NULL DEFAULT 'text'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snippets_repository ON snippets(repository_id)`,
	`CREATE TABLE IF NOT EXISTS search_history (
		id           BIGSERIAL PRIMARY KEY,
		query        TEXT NOT NULL,
		result_count INTEGER NOT NULL,
		searched_at  TEXT NOT NULL
	)`,
}
