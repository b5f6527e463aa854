package storage

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT     NOT NULL UNIQUE,
    start_time DATETIME NOT NULL,
    vehicle    TEXT     NOT NULL,
    config     TEXT
);

CREATE TABLE IF NOT EXISTS telemetry (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER   NOT NULL REFERENCES sessions (id),
    timestamp  TIMESTAMP NOT NULL,
    tick       INTEGER   NOT NULL,
    mode       INTEGER   NOT NULL,
    deg_x      REAL,
    deg_y      REAL,
    deg_z      REAL,
    vision_tx  REAL,
    vision_ty  REAL,
    vision_tz  REAL,
    vision_vx  REAL,
    vision_vy  REAL,
    vision_vz  REAL,
    height     REAL,
    battery    INTEGER
);

CREATE TABLE IF NOT EXISTS captures (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER   NOT NULL REFERENCES sessions (id),
    timestamp  TIMESTAMP NOT NULL,
    kind       TEXT      NOT NULL,
    camera     TEXT,
    count      INTEGER   NOT NULL,
    path       TEXT,
    bytes      INTEGER   NOT NULL
);`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_telemetry_session_time ON telemetry (session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_telemetry_session_tick ON telemetry (session_id, tick);
CREATE INDEX IF NOT EXISTS idx_captures_session_time ON captures (session_id, timestamp);`

	insertSessionSQL = `
INSERT INTO sessions (
                      run_id,
                      start_time,
                      vehicle,
                      config)
VALUES (?, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    run_id,
    start_time,
    vehicle,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    run_id,
    start_time,
    vehicle,
    config
FROM sessions
ORDER BY start_time, id`

	insertTelemetrySQL = `
INSERT INTO telemetry (session_id,
                       timestamp,
                       tick,
                       mode,
                       deg_x,
                       deg_y,
                       deg_z,
                       vision_tx,
                       vision_ty,
                       vision_tz,
                       vision_vx,
                       vision_vy,
                       vision_vz,
                       height,
                       battery)
VALUES `

	telemetryValuesPlaceholder = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	selectTelemetryBoundsSQL = `
SELECT
    COALESCE(MIN(timestamp), ''),
    COALESCE(MAX(timestamp), '')
FROM telemetry
WHERE
    session_id = ?`

	selectTelemetrySQL = `
SELECT
    id,
    timestamp,
    tick,
    mode,
    deg_x,
    deg_y,
    deg_z,
    vision_tx,
    vision_ty,
    vision_tz,
    vision_vx,
    vision_vy,
    vision_vz,
    height,
    battery
FROM telemetry
WHERE
    session_id = ?
    AND timestamp >= ?
    AND timestamp <= ?
ORDER BY tick`

	insertCaptureSQL = `
INSERT INTO captures (session_id,
                      timestamp,
                      kind,
                      camera,
                      count,
                      path,
                      bytes)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectCapturesSQL = `
SELECT
    id,
    timestamp,
    kind,
    camera,
    count,
    path,
    bytes
FROM captures
WHERE
    session_id = ?
ORDER BY timestamp, id`
)
