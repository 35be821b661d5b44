//go:build ignore

// Package main generates a synthetic review corpus for local development.
// Usage: go run scripts/generate-test-corpus.go -reviews 500 -output data/comments.db
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

var (
	numReviews = flag.Int("reviews", 500, "Number of reviews to generate")
	outputPath = flag.String("output", "data/comments.db", "Output sqlite file")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var roomTypes = []string{
	"花园大床房", "花园双床房", "行政大床房", "行政双床房", "豪华江景房", "",
}

var fuzzyRoomTypes = []string{
	"大床房", "双床房", "套房", "主题房", "",
}

var travelTypes = []string{"家庭出游", "商务出差", "情侣出游", "朋友出游", ""}

var fragments = []string{
	"早餐种类很丰富，中西式都有",
	"房间隔音一般，晚上能听到走廊的声音",
	"前台服务态度很好，办理入住很快",
	"位置就在环市东路，出行很方便",
	"泳池水温合适，孩子玩得很开心",
	"床垫偏硬，但睡得还算舒服",
	"行政酒廊的下午茶不错",
	"卫生间有点旧，不过打扫得很干净",
	"健身房设备齐全，还有教练指导",
	"性价比很高，下次还会再来",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := run(rng); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %d reviews in %s\n", *numReviews, *outputPath)
}

func run(rng *rand.Rand) error {
	_ = os.Remove(*outputPath)
	db, err := sql.Open("sqlite", *outputPath)
	if err != nil {
		return err
	}
	defer db.Close()

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
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO comments VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	base := time.Date(2025, 4, 17, 0, 0, 0, 0, time.UTC)
	for i := 0; i < *numReviews; i++ {
		text := fragments[rng.Intn(len(fragments))]
		if rng.Intn(2) == 0 {
			text += "。" + fragments[rng.Intn(len(fragments))]
		}
		publish := base.AddDate(0, 0, -rng.Intn(730)).Format("2006-01-02")

		_, err := stmt.Exec(
			fmt.Sprintf("c%06d", i),
			text,
			3.0+rng.Float64()*2.0,
			publish,
			rng.Float64()*10.0,
			rng.Intn(20),
			rng.Intn(50),
			roomTypes[rng.Intn(len(roomTypes))],
			fuzzyRoomTypes[rng.Intn(len(fuzzyRoomTypes))],
			3+rng.Intn(3),
			travelTypes[rng.Intn(len(travelTypes))],
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
