package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/zapzap/internal/game"
	"github.com/lox/zapzap/internal/party"
	"github.com/lox/zapzap/internal/randutil"
)

var storeTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Both implementations satisfy the same contract; every test runs against
// each of them.
func forEachStore(t *testing.T, run func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		s := NewMemory()
		t.Cleanup(func() { s.Close() })
		run(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		s, err := OpenSQLite(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		run(t, s)
	})
}

func testParty(id, owner string) *party.Party {
	return &party.Party{
		ID:         id,
		Name:       "friday night",
		OwnerID:    owner,
		InviteCode: "INVITE" + id[len(id)-2:],
		Visibility: party.Public,
		Status:     party.Waiting,
		Settings:   party.DefaultSettings(),
		CreatedAt:  storeTime,
		UpdatedAt:  storeTime,
	}
}

func TestUserRepository(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		alice := &User{ID: "u1", Username: "alice", CreatedAt: storeTime}
		bot := &User{ID: "u2", Username: "bot-ana", IsBot: true, BotDifficulty: BotHard, CreatedAt: storeTime}
		require.NoError(t, s.CreateUser(ctx, alice))
		require.NoError(t, s.CreateUser(ctx, bot))

		// Duplicate ids and usernames are rejected.
		assert.Error(t, s.CreateUser(ctx, &User{ID: "u1", Username: "other"}))
		assert.Error(t, s.CreateUser(ctx, &User{ID: "u3", Username: "alice"}))

		got, err := s.UserByID(ctx, "u2")
		require.NoError(t, err)
		assert.True(t, got.IsBot)
		assert.Equal(t, BotHard, got.BotDifficulty)

		got, err = s.UserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)

		_, err = s.UserByID(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		exists, err := s.UserExists(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = s.UserExists(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, exists)

		n, err := s.CountUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		page, err := s.ListUsers(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "u2", page[0].ID)
	})
}

func TestPartyRepository(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		p := testParty("p1", "u1")
		require.NoError(t, s.CreateParty(ctx, p))
		assert.Error(t, s.CreateParty(ctx, p))

		got, err := s.PartyByID(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, p.Name, got.Name)
		assert.Equal(t, p.Settings, got.Settings)

		got, err = s.PartyByInviteCode(ctx, p.InviteCode)
		require.NoError(t, err)
		assert.Equal(t, "p1", got.ID)

		_, err = s.PartyByInviteCode(ctx, "WRONGCOD")
		assert.ErrorIs(t, err, ErrNotFound)

		// Updates are visible on the next read.
		p.Status = party.Playing
		p.UpdatedAt = storeTime.Add(time.Minute)
		require.NoError(t, s.UpdateParty(ctx, p))
		got, err = s.PartyByID(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, party.Playing, got.Status)

		err = s.UpdateParty(ctx, testParty("p9", "u1"))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListPublic(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		open := testParty("p1", "u1")
		open.CreatedAt = storeTime
		playing := testParty("p2", "u2")
		playing.Status = party.Playing
		hidden := testParty("p3", "u3")
		hidden.Visibility = party.Private
		later := testParty("p4", "u4")
		later.CreatedAt = storeTime.Add(time.Hour)
		for _, p := range []*party.Party{open, playing, hidden, later} {
			require.NoError(t, s.CreateParty(ctx, p))
		}

		got, err := s.ListPublic(ctx, party.Waiting, 0, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "p1", got[0].ID, "ordered by creation time")
		assert.Equal(t, "p4", got[1].ID)

		n, err := s.CountPublic(ctx, party.Waiting)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err = s.ListPublic(ctx, party.Waiting, 1, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "p4", got[0].ID)
	})
}

func TestSeats(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateParty(ctx, testParty("p1", "u1")))

		require.NoError(t, s.AddPlayer(ctx, &party.Seat{PartyID: "p1", UserID: "u1", PlayerIndex: 0, JoinedAt: storeTime}))
		require.NoError(t, s.AddPlayer(ctx, &party.Seat{PartyID: "p1", UserID: "u2", PlayerIndex: 1, JoinedAt: storeTime}))
		require.NoError(t, s.AddPlayer(ctx, &party.Seat{PartyID: "p1", UserID: "u3", PlayerIndex: 2, JoinedAt: storeTime}))
		assert.Error(t, s.AddPlayer(ctx, &party.Seat{PartyID: "p1", UserID: "u2", PlayerIndex: 3}), "no duplicate users")

		n, err := s.PlayerCount(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		in, err := s.IsUserInParty(ctx, "p1", "u2")
		require.NoError(t, err)
		assert.True(t, in)

		idx, err := s.UserPlayerIndex(ctx, "p1", "u3")
		require.NoError(t, err)
		assert.Equal(t, 2, idx)

		found, err := s.PartyForUser(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, "p1", found.ID)
		_, err = s.PartyForUser(ctx, "stranger")
		assert.ErrorIs(t, err, ErrNotFound)

		// Leaving compacts the indices through UpdateSeats.
		require.NoError(t, s.RemovePlayer(ctx, "p1", "u2"))
		seats, err := s.Players(ctx, "p1")
		require.NoError(t, err)
		party.Compact(seats)
		require.NoError(t, s.UpdateSeats(ctx, "p1", seats))

		seats, err = s.Players(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, seats, 2)
		assert.Equal(t, "u1", seats[0].UserID)
		assert.Equal(t, 0, seats[0].PlayerIndex)
		assert.Equal(t, "u3", seats[1].UserID)
		assert.Equal(t, 1, seats[1].PlayerIndex)

		err = s.RemovePlayer(ctx, "p1", "u2")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRoundsAndGameState(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateParty(ctx, testParty("p1", "u1")))

		round, state, err := game.Deal("r1", "p1", 3, 5, randutil.New(7), storeTime)
		require.NoError(t, err)
		require.NoError(t, s.SaveRound(ctx, round))
		require.NoError(t, s.SaveGameState(ctx, "p1", state))

		active, err := s.ActiveRound(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "r1", active.ID)
		assert.Equal(t, game.RoundActive, active.Status)

		// Reloaded state equals what was saved.
		loaded, err := s.GameState(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, state, loaded)
		_, ok := loaded.Conserved()
		assert.True(t, ok)

		// Finishing the round is an upsert; the next round becomes active.
		round.Status = game.RoundFinished
		finished := storeTime.Add(time.Minute)
		round.FinishedAt = &finished
		require.NoError(t, s.SaveRound(ctx, round))

		_, err = s.ActiveRound(ctx, "p1")
		assert.ErrorIs(t, err, ErrNotFound)

		next, err := game.NextRound(round, state, "r2", 5, randutil.New(8), storeTime)
		require.NoError(t, err)
		require.NoError(t, s.SaveRound(ctx, next))
		require.NoError(t, s.SaveGameState(ctx, "p1", state))

		active, err = s.ActiveRound(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "r2", active.ID)

		all, err := s.Rounds(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, 1, all[0].RoundNumber)
		assert.Equal(t, 2, all[1].RoundNumber)
		require.NotNil(t, all[0].FinishedAt)
		assert.True(t, all[0].FinishedAt.Equal(finished))

		// Deleting a round undoes a write; deleting again reports not found.
		require.NoError(t, s.DeleteRound(ctx, "p1", "r2"))
		_, err = s.ActiveRound(ctx, "p1")
		assert.ErrorIs(t, err, ErrNotFound)
		err = s.DeleteRound(ctx, "p1", "r2")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeletePartyCascades(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateParty(ctx, testParty("p1", "u1")))
		require.NoError(t, s.AddPlayer(ctx, &party.Seat{PartyID: "p1", UserID: "u1", JoinedAt: storeTime}))

		round, state, err := game.Deal("r1", "p1", 3, 5, randutil.New(9), storeTime)
		require.NoError(t, err)
		require.NoError(t, s.SaveRound(ctx, round))
		require.NoError(t, s.SaveGameState(ctx, "p1", state))

		require.NoError(t, s.DeleteParty(ctx, "p1"))

		_, err = s.PartyByID(ctx, "p1")
		assert.ErrorIs(t, err, ErrNotFound)
		n, err := s.PlayerCount(ctx, "p1")
		require.NoError(t, err)
		assert.Zero(t, n)
		_, err = s.GameState(ctx, "p1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.ActiveRound(ctx, "p1")
		assert.ErrorIs(t, err, ErrNotFound)

		err = s.DeleteParty(ctx, "p1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
