package review

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "comments.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec(`
		CREATE TABLE comments (
			comment_id      TEXT PRIMARY KEY,
			comment         TEXT NOT NULL,
			score           REAL NOT NULL,
			publish_date    TEXT NOT NULL,
			quality_score   REAL NOT NULL,
			review_count    INTEGER NOT NULL,
			useful_count    INTEGER NOT NULL,
			room_type       TEXT,
			fuzzy_room_type TEXT,
			star            INTEGER,
			travel_type     TEXT
		)`)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO comments VALUES
		('A', '早餐很丰盛', 4.8, '2025-01-10', 8.5, 3, 12, '花园大床房', '大床房', 5, '家庭出游'),
		('B', '隔音一般', 3.5, '2024-11-02', 6.0, 1, 2, NULL, NULL, NULL, NULL)`)
	require.NoError(t, err)
	return path
}

func TestLoadSQLite(t *testing.T) {
	path := createTestDB(t)

	reviews, err := LoadSQLite(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, reviews, 2)

	byID := make(map[string]Review, len(reviews))
	for _, r := range reviews {
		byID[r.CommentID] = r
	}

	a := byID["A"]
	assert.Equal(t, "早餐很丰盛", a.Text)
	assert.InDelta(t, 4.8, a.Score, 1e-9)
	assert.Equal(t, "2025-01-10", a.PublishDate.Format("2006-01-02"))
	assert.Equal(t, "花园大床房", a.RoomType)
	assert.Equal(t, 5, a.Star)
	assert.Equal(t, "家庭出游", a.TravelType)

	b := byID["B"]
	assert.Empty(t, b.RoomType, "NULL columns coalesce to the zero value")
	assert.Zero(t, b.Star)
}

func TestLoadSQLite_BadDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE comments (
		comment_id TEXT, comment TEXT, score REAL, publish_date TEXT,
		quality_score REAL, review_count INTEGER, useful_count INTEGER,
		room_type TEXT, fuzzy_room_type TEXT, star INTEGER, travel_type TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO comments VALUES
		('A', 'text', 4.0, 'not-a-date', 5.0, 0, 0, NULL, NULL, NULL, NULL)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = LoadSQLite(context.Background(), path)
	assert.Error(t, err)
}
