package main

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// PlayerRow represents an account record
type PlayerRow struct {
	ID        int64
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// StatsRow represents per-account win/loss totals
type StatsRow struct {
	PlayerID int64
	Wins     int
	Losses   int
}

// MatchRecord is one concluded networked match. Player ids are
// connection ids; account ids are attached when the connections were
// authenticated (0 otherwise).
type MatchRecord struct {
	Player1ID     string
	Player2ID     string
	Player1Score  int
	Player2Score  int
	Mode          GameMode
	StartedAt     time.Time
	EndedAt       time.Time
	WinnerID      string
	WinnerAccount int64
	LoserAccount  int64
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL for concurrent readers alongside the recorder's writer
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stats (
		player_id INTEGER PRIMARY KEY REFERENCES players(id),
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player1_id TEXT NOT NULL,
		player2_id TEXT NOT NULL,
		player1_score INTEGER NOT NULL,
		player2_score INTEGER NOT NULL,
		game_mode TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL,
		winner_id TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_matches_ended ON matches(ended_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// GetSetting returns a settings value, "" if absent
func (db *DB) GetSetting(key string) string {
	var v string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if err != nil {
		return ""
	}
	return v
}

// SetSetting upserts a settings value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

// CreatePlayer inserts a new account with an empty stats row
func (db *DB) CreatePlayer(username, passHash string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO players (username, pass_hash) VALUES (?, ?)",
		username, passHash)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := db.conn.Exec("INSERT INTO stats (player_id) VALUES (?)", id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetPlayerByUsername looks up an account, nil if absent
func (db *DB) GetPlayerByUsername(username string) (*PlayerRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, pass_hash, created_at FROM players WHERE username = ?",
		username)
	var p PlayerRow
	if err := row.Scan(&p.ID, &p.Username, &p.PassHash, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// UsernameExists reports whether an account name is taken
func (db *DB) UsernameExists(username string) (bool, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM players WHERE username = ?", username).Scan(&n)
	return n > 0, err
}

// GetStats returns an account's win/loss totals
func (db *DB) GetStats(playerID int64) (*StatsRow, error) {
	row := db.conn.QueryRow(
		"SELECT player_id, wins, losses FROM stats WHERE player_id = ?", playerID)
	var s StatsRow
	if err := row.Scan(&s.PlayerID, &s.Wins, &s.Losses); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// RecordMatch persists one concluded match and bumps the account stats
// of any authenticated participants
func (db *DB) RecordMatch(rec MatchRecord) error {
	_, err := db.conn.Exec(`
		INSERT INTO matches (player1_id, player2_id, player1_score, player2_score,
			game_mode, started_at, ended_at, winner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Player1ID, rec.Player2ID, rec.Player1Score, rec.Player2Score,
		string(rec.Mode), rec.StartedAt, rec.EndedAt, rec.WinnerID)
	if err != nil {
		return err
	}
	if rec.WinnerAccount != 0 {
		if _, err := db.conn.Exec(
			"UPDATE stats SET wins = wins + 1 WHERE player_id = ?", rec.WinnerAccount); err != nil {
			return err
		}
	}
	if rec.LoserAccount != 0 {
		if _, err := db.conn.Exec(
			"UPDATE stats SET losses = losses + 1 WHERE player_id = ?", rec.LoserAccount); err != nil {
			return err
		}
	}
	return nil
}

// MatchCount returns the number of persisted matches
func (db *DB) MatchCount() (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM matches").Scan(&n)
	return n, err
}

// GetLeaderboard returns accounts ordered by wins
func (db *DB) GetLeaderboard(limit int) ([]LeaderboardEntry, error) {
	rows, err := db.conn.Query(`
		SELECT p.username, s.wins, s.losses
		FROM stats s JOIN players p ON p.id = s.player_id
		ORDER BY s.wins DESC, s.losses ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.Wins, &e.Losses); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
