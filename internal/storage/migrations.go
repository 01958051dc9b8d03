package storage

// Schema is the relational schema from spec.md §6. IDs are 26-character
// ULID strings; reviews cascade with their place; campaigns do NOT cascade
// to places, so extracted places survive campaign archival.
const Schema = `
CREATE TABLE IF NOT EXISTS campaigns (
	id               CHAR(26) PRIMARY KEY,
	title            TEXT NOT NULL,
	activity         TEXT NOT NULL,
	country_code     TEXT NOT NULL,
	admin1_code      TEXT,
	admin2_code      TEXT,
	city_geoname_id  BIGINT,
	location_name    TEXT NOT NULL,
	iso_language     TEXT,
	locale           TEXT,
	max_results      INTEGER NOT NULL,
	min_rating       DOUBLE PRECISION,
	min_population   BIGINT,
	max_bots         INTEGER NOT NULL,
	total_tasks      INTEGER NOT NULL DEFAULT 0,
	completed_tasks  INTEGER NOT NULL DEFAULT 0,
	failed_tasks     INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL,
	started_at       TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ,
	status           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS place_extraction_tasks (
	id            CHAR(26) PRIMARY KEY,
	campaign_id   CHAR(26) NOT NULL REFERENCES campaigns(id),
	geoname_id    BIGINT NOT NULL,
	geoname_name  TEXT NOT NULL,
	search_seed   TEXT NOT NULL,
	status        TEXT NOT NULL,
	attempts      INTEGER NOT NULL DEFAULT 0,
	last_error    TEXT,
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_tasks_campaign_status ON place_extraction_tasks(campaign_id, status);

CREATE TABLE IF NOT EXISTS extracted_places (
	id               CHAR(26) PRIMARY KEY,
	fingerprint      TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	address          TEXT NOT NULL,
	city             TEXT,
	category         TEXT,
	rating           DOUBLE PRECISION,
	review_count     INTEGER,
	phone            TEXT,
	website          TEXT,
	lat              DOUBLE PRECISION,
	lng              DOUBLE PRECISION,
	source_task_id   CHAR(26) NOT NULL REFERENCES place_extraction_tasks(id),
	extracted_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_places_source_task ON extracted_places(source_task_id);

CREATE TABLE IF NOT EXISTS extracted_place_reviews (
	id         CHAR(26) PRIMARY KEY,
	place_id   CHAR(26) NOT NULL REFERENCES extracted_places(id) ON DELETE CASCADE,
	author     TEXT NOT NULL,
	rating     DOUBLE PRECISION NOT NULL,
	text       TEXT,
	posted_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_reviews_place ON extracted_place_reviews(place_id);
`
