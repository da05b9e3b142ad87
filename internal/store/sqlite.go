package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lox/zapzap/internal/game"
	"github.com/lox/zapzap/internal/party"
)

// SQLite persists everything in a single sqlite database. The game state of
// an active round is stored as one JSON blob per party; relational tables
// cover users, parties, seats and rounds.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The blob-per-party model relies on single-writer semantics.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			is_bot INTEGER NOT NULL DEFAULT 0,
			bot_difficulty TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS parties (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			invite_code TEXT NOT NULL UNIQUE,
			visibility TEXT NOT NULL,
			status TEXT NOT NULL,
			player_count INTEGER NOT NULL,
			hand_size INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS party_players (
			party_id TEXT NOT NULL REFERENCES parties(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			player_index INTEGER NOT NULL,
			joined_at TIMESTAMP NOT NULL,
			PRIMARY KEY (party_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS rounds (
			id TEXT PRIMARY KEY,
			party_id TEXT NOT NULL REFERENCES parties(id) ON DELETE CASCADE,
			round_number INTEGER NOT NULL,
			status TEXT NOT NULL,
			current_turn INTEGER NOT NULL,
			current_action TEXT NOT NULL,
			starting_player INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS game_states (
			party_id TEXT PRIMARY KEY REFERENCES parties(id) ON DELETE CASCADE,
			state TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_party ON rounds(party_id, round_number)`,
		`CREATE INDEX IF NOT EXISTS idx_players_user ON party_players(user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) CreateUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, is_bot, bot_difficulty, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Username, u.IsBot, string(u.BotDifficulty), u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.ID, err)
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var difficulty string
	err := row.Scan(&u.ID, &u.Username, &u.IsBot, &difficulty, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.BotDifficulty = BotDifficulty(difficulty)
	return &u, nil
}

func (s *SQLite) UserByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, is_bot, bot_difficulty, created_at FROM users WHERE id = ?
	`, id))
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return u, nil
}

func (s *SQLite) UserByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, is_bot, bot_difficulty, created_at FROM users WHERE username = ?
	`, username))
	if err != nil {
		return nil, fmt.Errorf("username %s: %w", username, err)
	}
	return u, nil
}

func (s *SQLite) UserExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("user exists %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLite) ListUsers(ctx context.Context, offset, limit int) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, is_bot, bot_difficulty, created_at
		FROM users ORDER BY id LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var u User
		var difficulty string
		if err := rows.Scan(&u.ID, &u.Username, &u.IsBot, &difficulty, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.BotDifficulty = BotDifficulty(difficulty)
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *SQLite) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *SQLite) CreateParty(ctx context.Context, p *party.Party) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parties (id, name, owner_id, invite_code, visibility, status,
			player_count, hand_size, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.OwnerID, p.InviteCode, string(p.Visibility), string(p.Status),
		p.Settings.PlayerCount, p.Settings.HandSize, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create party %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLite) UpdateParty(ctx context.Context, p *party.Party) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE parties SET name = ?, owner_id = ?, invite_code = ?, visibility = ?,
			status = ?, player_count = ?, hand_size = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, p.OwnerID, p.InviteCode, string(p.Visibility), string(p.Status),
		p.Settings.PlayerCount, p.Settings.HandSize, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update party %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("party %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLite) DeleteParty(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM parties WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete party %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("party %s: %w", id, ErrNotFound)
	}
	return nil
}

const partyColumns = `id, name, owner_id, invite_code, visibility, status,
	player_count, hand_size, created_at, updated_at`

func scanParty(scan func(dest ...any) error) (*party.Party, error) {
	var p party.Party
	var visibility, status string
	err := scan(&p.ID, &p.Name, &p.OwnerID, &p.InviteCode, &visibility, &status,
		&p.Settings.PlayerCount, &p.Settings.HandSize, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Visibility = party.Visibility(visibility)
	p.Status = party.Status(status)
	return &p, nil
}

func (s *SQLite) PartyByID(ctx context.Context, id string) (*party.Party, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = ?`, id)
	p, err := scanParty(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("party %s: %w", id, err)
	}
	return p, nil
}

func (s *SQLite) PartyByInviteCode(ctx context.Context, code string) (*party.Party, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+partyColumns+` FROM parties WHERE invite_code = ?`, code)
	p, err := scanParty(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("invite %s: %w", code, err)
	}
	return p, nil
}

func (s *SQLite) ListPublic(ctx context.Context, status party.Status, offset, limit int) ([]*party.Party, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+partyColumns+` FROM parties
		WHERE visibility = ? AND status = ?
		ORDER BY created_at, id LIMIT ? OFFSET ?
	`, string(party.Public), string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list public parties: %w", err)
	}
	defer rows.Close()

	var out []*party.Party
	for rows.Next() {
		p, err := scanParty(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) ListByStatus(ctx context.Context, status party.Status) ([]*party.Party, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+partyColumns+` FROM parties WHERE status = ? ORDER BY id
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list parties by status: %w", err)
	}
	defer rows.Close()

	var out []*party.Party
	for rows.Next() {
		p, err := scanParty(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) CountPublic(ctx context.Context, status party.Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM parties WHERE visibility = ? AND status = ?
	`, string(party.Public), string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count public parties: %w", err)
	}
	return n, nil
}

func (s *SQLite) AddPlayer(ctx context.Context, seat *party.Seat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO party_players (party_id, user_id, player_index, joined_at)
		VALUES (?, ?, ?, ?)
	`, seat.PartyID, seat.UserID, seat.PlayerIndex, seat.JoinedAt)
	if err != nil {
		return fmt.Errorf("add player %s/%s: %w", seat.PartyID, seat.UserID, err)
	}
	return nil
}

func (s *SQLite) RemovePlayer(ctx context.Context, partyID, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM party_players WHERE party_id = ? AND user_id = ?
	`, partyID, userID)
	if err != nil {
		return fmt.Errorf("remove player %s/%s: %w", partyID, userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("seat %s/%s: %w", partyID, userID, ErrNotFound)
	}
	return nil
}

func (s *SQLite) Players(ctx context.Context, partyID string) ([]*party.Seat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT party_id, user_id, player_index, joined_at
		FROM party_players WHERE party_id = ? ORDER BY player_index
	`, partyID)
	if err != nil {
		return nil, fmt.Errorf("players of %s: %w", partyID, err)
	}
	defer rows.Close()

	var out []*party.Seat
	for rows.Next() {
		var seat party.Seat
		if err := rows.Scan(&seat.PartyID, &seat.UserID, &seat.PlayerIndex, &seat.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan seat: %w", err)
		}
		out = append(out, &seat)
	}
	return out, rows.Err()
}

func (s *SQLite) PlayerCount(ctx context.Context, partyID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM party_players WHERE party_id = ?
	`, partyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("player count of %s: %w", partyID, err)
	}
	return n, nil
}

func (s *SQLite) IsUserInParty(ctx context.Context, partyID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM party_players WHERE party_id = ? AND user_id = ?
	`, partyID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("seat lookup %s/%s: %w", partyID, userID, err)
	}
	return n > 0, nil
}

func (s *SQLite) UserPlayerIndex(ctx context.Context, partyID, userID string) (int, error) {
	var idx int
	err := s.db.QueryRowContext(ctx, `
		SELECT player_index FROM party_players WHERE party_id = ? AND user_id = ?
	`, partyID, userID).Scan(&idx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("seat %s/%s: %w", partyID, userID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("seat %s/%s: %w", partyID, userID, err)
	}
	return idx, nil
}

// UpdateSeats rewrites the party's seat assignments in one transaction,
// used after leave-compaction.
func (s *SQLite) UpdateSeats(ctx context.Context, partyID string, seats []*party.Seat) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update seats of %s: %w", partyID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM party_players WHERE party_id = ?`, partyID); err != nil {
		return fmt.Errorf("update seats of %s: %w", partyID, err)
	}
	for _, seat := range seats {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO party_players (party_id, user_id, player_index, joined_at)
			VALUES (?, ?, ?, ?)
		`, partyID, seat.UserID, seat.PlayerIndex, seat.JoinedAt)
		if err != nil {
			return fmt.Errorf("update seats of %s: %w", partyID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) PartyForUser(ctx context.Context, userID string) (*party.Party, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+partyColumns+` FROM parties
		WHERE id IN (SELECT party_id FROM party_players WHERE user_id = ?)
		LIMIT 1
	`, userID)
	p, err := scanParty(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("user %s party: %w", userID, err)
	}
	return p, nil
}

func (s *SQLite) SaveRound(ctx context.Context, r *game.Round) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rounds (id, party_id, round_number, status, current_turn,
			current_action, starting_player, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status,
			current_turn = excluded.current_turn,
			current_action = excluded.current_action,
			finished_at = excluded.finished_at
	`, r.ID, r.PartyID, r.RoundNumber, string(r.Status), r.CurrentTurn,
		string(r.CurrentAction), r.StartingPlayer, r.CreatedAt, r.FinishedAt)
	if err != nil {
		return fmt.Errorf("save round %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLite) DeleteRound(ctx context.Context, partyID, roundID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM rounds WHERE party_id = ? AND id = ?
	`, partyID, roundID)
	if err != nil {
		return fmt.Errorf("delete round %s: %w", roundID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("round %s/%s: %w", partyID, roundID, ErrNotFound)
	}
	return nil
}

func scanRound(scan func(dest ...any) error) (*game.Round, error) {
	var r game.Round
	var status, action string
	var finished sql.NullTime
	err := scan(&r.ID, &r.PartyID, &r.RoundNumber, &status, &r.CurrentTurn,
		&action, &r.StartingPlayer, &r.CreatedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = game.RoundStatus(status)
	r.CurrentAction = game.Phase(action)
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

const roundColumns = `id, party_id, round_number, status, current_turn,
	current_action, starting_player, created_at, finished_at`

func (s *SQLite) ActiveRound(ctx context.Context, partyID string) (*game.Round, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+roundColumns+` FROM rounds
		WHERE party_id = ? AND status = ?
		ORDER BY round_number DESC LIMIT 1
	`, partyID, string(game.RoundActive))
	r, err := scanRound(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("active round for %s: %w", partyID, err)
	}
	return r, nil
}

func (s *SQLite) Rounds(ctx context.Context, partyID string) ([]*game.Round, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+roundColumns+` FROM rounds WHERE party_id = ? ORDER BY round_number
	`, partyID)
	if err != nil {
		return nil, fmt.Errorf("rounds of %s: %w", partyID, err)
	}
	defer rows.Close()

	var out []*game.Round
	for rows.Next() {
		r, err := scanRound(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveGameState(ctx context.Context, partyID string, state *game.State) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal game state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO game_states (party_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(party_id) DO UPDATE SET state = excluded.state,
			updated_at = excluded.updated_at
	`, partyID, string(blob), time.Now())
	if err != nil {
		return fmt.Errorf("save game state for %s: %w", partyID, err)
	}
	return nil
}

func (s *SQLite) GameState(ctx context.Context, partyID string) (*game.State, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM game_states WHERE party_id = ?
	`, partyID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("game state for %s: %w", partyID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("game state for %s: %w", partyID, err)
	}
	var state game.State
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return nil, fmt.Errorf("unmarshal game state: %w", err)
	}
	return &state, nil
}
