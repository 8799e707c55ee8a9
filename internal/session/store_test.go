package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleaxiao/PCB-MCP/internal/board"
)

const fixtureBoard = `(kicad_pcb
  (version 20240108)
  (generator "pcbnew")
  (layers
    (0 "F.Cu" signal)
    (31 "B.Cu" signal)
  )
  (net 0 "")
  (net 1 "GND")
  (net 2 "VIN")
  (footprint "Package_TO_SOT_SMD:SOT-23"
    (layer "F.Cu")
    (at 20 20)
    (property "Reference" "U1")
    (property "Value" "TPS5430")
    (pad "1" smd rect (at -1 0) (size 0.8 0.8) (net 2 "VIN"))
    (pad "2" smd rect (at 1 0) (size 0.8 0.8) (net 1 "GND"))
  )
  (segment (start 20 20) (end 30 20) (width 0.5) (layer "F.Cu") (net 2) (uuid "seg-1"))
)
`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.kicad_pcb")
	require.NoError(t, os.WriteFile(path, []byte(fixtureBoard), 0o644))
	return path
}

// Checkout pins a board, exposing an independent working copy.
func TestStore_Checkout(t *testing.T) {
	store := NewStore()
	path := writeFixture(t)

	co, err := store.Checkout("sess-1", path)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", co.ID)
	require.NotNil(t, co.Working)

	require.NoError(t, co.Working.MoveFootprint("U1", board.Point{X: 25, Y: 25}, 0))
	assert.Equal(t, 20.0, co.Committed.Footprint("U1").At.X)
	assert.Equal(t, 25.0, co.Working.Footprint("U1").At.X)
}

// A board path admits one checkout at a time.
func TestStore_CheckoutExclusive(t *testing.T) {
	store := NewStore()
	path := writeFixture(t)

	_, err := store.Checkout("sess-1", path)
	require.NoError(t, err)

	_, err = store.Checkout("sess-2", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checked out by session sess-1")

	store.Release("sess-1")
	_, err = store.Checkout("sess-2", path)
	assert.NoError(t, err)
}

// One session holds at most one checkout.
func TestStore_CheckoutDuplicateSession(t *testing.T) {
	store := NewStore()
	path := writeFixture(t)

	_, err := store.Checkout("sess-1", path)
	require.NoError(t, err)
	_, err = store.Checkout("sess-1", writeFixture(t))
	assert.Error(t, err)
}

// DiscardWorking restores the committed snapshot.
func TestStore_DiscardWorking(t *testing.T) {
	store := NewStore()
	co, err := store.Checkout("sess-1", writeFixture(t))
	require.NoError(t, err)

	require.NoError(t, co.Working.MoveFootprint("U1", board.Point{X: 40, Y: 40}, 90))
	require.NoError(t, store.DiscardWorking("sess-1"))

	co, err = store.Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, 20.0, co.Working.Footprint("U1").At.X)
	assert.Equal(t, 0.0, co.Working.Footprint("U1").Rotation)
}

// Commit rewrites the board file and promotes the working copy.
func TestStore_Commit(t *testing.T) {
	store := NewStore()
	path := writeFixture(t)
	co, err := store.Checkout("sess-1", path)
	require.NoError(t, err)

	require.NoError(t, co.Working.MoveFootprint("U1", board.Point{X: 33.5, Y: 12}, 180))
	require.NoError(t, store.Commit("sess-1"))

	assert.Equal(t, 33.5, co.Committed.Footprint("U1").At.X)

	reloaded, err := board.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 33.5, reloaded.Footprint("U1").At.X)
	assert.Equal(t, 180.0, reloaded.Footprint("U1").Rotation)
}

// Commit keeps the board file's original permissions across the rename.
func TestStore_CommitPreservesFileMode(t *testing.T) {
	store := NewStore()
	path := writeFixture(t)
	require.NoError(t, os.Chmod(path, 0o664))

	co, err := store.Checkout("sess-1", path)
	require.NoError(t, err)
	require.NoError(t, co.Working.MoveFootprint("U1", board.Point{X: 25, Y: 25}, 0))
	require.NoError(t, store.Commit("sess-1"))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o664), fi.Mode().Perm())
}

// A failed load releases the reservation so the path stays available.
func TestStore_CheckoutLoadFailureFreesPath(t *testing.T) {
	store := NewStore()
	path := filepath.Join(t.TempDir(), "bad.kicad_pcb")
	require.NoError(t, os.WriteFile(path, []byte("(not_a_board"), 0o644))

	_, err := store.Checkout("sess-1", path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(fixtureBoard), 0o644))
	_, err = store.Checkout("sess-1", path)
	assert.NoError(t, err)
}

// Get fails for unknown sessions; Release of unknown sessions is a no-op.
func TestStore_UnknownSession(t *testing.T) {
	store := NewStore()
	_, err := store.Get("nope")
	assert.Error(t, err)
	store.Release("nope")
}

// The archive round-trips session records and upserts on conflict.
func TestArchive_SaveLoad(t *testing.T) {
	archive, err := OpenArchive(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer archive.Close()

	rec := Record{
		SessionID:  "sess-1",
		BoardPath:  "/tmp/test.kicad_pcb",
		Goal:       "move U1 away from the edge",
		Outcome:    "committed",
		Attempts:   2,
		Diff:       "moved U1 to (33.5, 12)",
		FinishedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, archive.Save(rec))

	got, err := archive.Load("sess-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Outcome, got.Outcome)
	assert.Equal(t, rec.Attempts, got.Attempts)
	assert.True(t, rec.FinishedAt.Equal(got.FinishedAt))

	rec.Outcome = "aborted"
	rec.AbortReason = "attempt budget exhausted"
	require.NoError(t, archive.Save(rec))

	got, err = archive.Load("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "aborted", got.Outcome)
	assert.Equal(t, "attempt budget exhausted", got.AbortReason)
}
