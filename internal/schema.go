package internal

// schemaVersion is bumped whenever migrations gains an entry
const schemaVersion = 1

// migrations are applied in order; index+1 is the resulting user_version
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS profiles (
    user_id         TEXT PRIMARY KEY,
    channel_name    TEXT NOT NULL DEFAULT '',
    content_type    TEXT NOT NULL DEFAULT '',
    niche           TEXT NOT NULL DEFAULT '',
    links_json      TEXT NOT NULL DEFAULT '[]',
    tone            TEXT NOT NULL DEFAULT '',
    target_audience TEXT NOT NULL DEFAULT '',
    context         TEXT NOT NULL DEFAULT '',
    updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    title         TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    thumbnail_key TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT 'draft'
                  CHECK(status IN ('draft', 'active', 'archived')),
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS videos (
    id                   TEXT PRIMARY KEY,
    project_id           TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    user_id              TEXT NOT NULL,
    title                TEXT NOT NULL DEFAULT '',
    file_name            TEXT NOT NULL DEFAULT '',
    storage_key          TEXT NOT NULL DEFAULT '',
    captions_key         TEXT NOT NULL DEFAULT '',
    file_size            INTEGER NOT NULL DEFAULT 0,
    duration             REAL NOT NULL DEFAULT 0,
    transcription        TEXT NOT NULL DEFAULT '',
    transcription_status TEXT NOT NULL DEFAULT 'idle'
                         CHECK(transcription_status IN ('idle', 'uploading', 'processing', 'completed', 'failed')),
    transcription_error  TEXT NOT NULL DEFAULT '',
    canvas_x             REAL NOT NULL DEFAULT 0,
    canvas_y             REAL NOT NULL DEFAULT 0,
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
    id                TEXT PRIMARY KEY,
    video_id          TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
    project_id        TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    user_id           TEXT NOT NULL,
    type              TEXT NOT NULL
                      CHECK(type IN ('title', 'description', 'thumbnail', 'tweets')),
    draft             TEXT NOT NULL DEFAULT '',
    thumbnail_key     TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'idle'
                      CHECK(status IN ('idle', 'generating', 'ready', 'error')),
    connections_json  TEXT NOT NULL DEFAULT '[]',
    chat_history_json TEXT NOT NULL DEFAULT '[]',
    canvas_x          REAL NOT NULL DEFAULT 0,
    canvas_y          REAL NOT NULL DEFAULT 0,
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS canvas_states (
    project_id    TEXT PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
    user_id       TEXT NOT NULL,
    nodes_json    TEXT NOT NULL DEFAULT '[]',
    edges_json    TEXT NOT NULL DEFAULT '[]',
    viewport_json TEXT NOT NULL DEFAULT '{}',
    updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_videos_project ON videos(project_id);
CREATE INDEX IF NOT EXISTS idx_agents_project ON agents(project_id);
CREATE INDEX IF NOT EXISTS idx_agents_video ON agents(video_id);
`,
}
