package review

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
)

// LoadSQLite reads the full review corpus from a local sqlite file.
// The comments table mirrors the serving schema; dates are stored as
// ISO "2006-01-02" strings.
func LoadSQLite(ctx context.Context, path string) ([]Review, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeReviewLoad, err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, `
		SELECT comment_id, comment, score, publish_date, quality_score,
		       review_count, useful_count,
		       COALESCE(room_type, ''), COALESCE(fuzzy_room_type, ''),
		       COALESCE(star, 0), COALESCE(travel_type, '')
		FROM comments`)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeReviewLoad, err)
	}
	defer func() { _ = rows.Close() }()

	var reviews []Review
	for rows.Next() {
		var r Review
		var publishDate string
		if err := rows.Scan(&r.CommentID, &r.Text, &r.Score, &publishDate,
			&r.QualityScore, &r.ReviewCount, &r.UsefulCount,
			&r.RoomType, &r.FuzzyRoomType, &r.Star, &r.TravelType); err != nil {
			return nil, ragerrors.Wrap(ragerrors.ErrCodeReviewLoad, err)
		}
		r.PublishDate, err = ParseDate(publishDate)
		if err != nil {
			return nil, ragerrors.New(ragerrors.ErrCodeReviewLoad,
				fmt.Sprintf("review %s: bad publish_date %q", r.CommentID, publishDate), err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeReviewLoad, err)
	}
	return reviews, nil
}

// ParseDate parses a review publish date. Accepts a calendar day or a
// full RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}
