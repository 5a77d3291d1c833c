package postgres

// Schema statements run by Init. The search_vector trigger keeps the GIN
// index current on every insert or update; page content is indexed with the
// english configuration to match the query side.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sites (
		url TEXT PRIMARY KEY,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pages (
		id TEXT PRIMARY KEY,
		parent_url TEXT NOT NULL REFERENCES sites(url) ON DELETE CASCADE,
		children_urls TEXT[] NOT NULL DEFAULT '{}',
		content TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		search_vector tsvector
	)`,
	`CREATE INDEX IF NOT EXISTS pages_search_vector_idx ON pages USING GIN (search_vector)`,
	`CREATE OR REPLACE FUNCTION pages_search_vector_update() RETURNS trigger AS $$
	BEGIN
		NEW.search_vector := to_tsvector('english', coalesce(NEW.content, ''));
		RETURN NEW;
	END
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS pages_search_vector_trg ON pages`,
	`CREATE TRIGGER pages_search_vector_trg
		BEFORE INSERT OR UPDATE OF content ON pages
		FOR EACH ROW EXECUTE FUNCTION pages_search_vector_update()`,
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id UUID PRIMARY KEY,
		target_site TEXT NOT NULL REFERENCES sites(url) ON DELETE CASCADE,
		title TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id UUID PRIMARY KEY,
		session_id UUID NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
}
