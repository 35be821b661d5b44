// Package review defines the hotel review data model and the in-memory
// review table used during serving. Reviews are immutable once loaded;
// the table is built at startup and read-only afterwards.
package review

import (
	"time"
)

// ExactRoomTypes is the closed set of exact room type names.
// A Review's RoomType is either one of these or empty.
var ExactRoomTypes = []string{
	"花园大床房", "花园双床房", "红棉大床套房", "红棉双床套房",
	"城央绿意大床房", "城央绿意双床房", "粤韵大床套房", "粤韵双床套房",
	"花园行政大床套房", "花园行政双床套房", "羊羊得意主题大床房",
	"羊羊得意主题大床套房", "大嘴猴亲子主题大床房",
	"盼酷小黄鸭亲子主题大床房", "盼酷小黄鸭亲子主题套房",
}

// FuzzyRoomTypes is the closed set of coarse room type names.
var FuzzyRoomTypes = []string{"大床房", "双床房", "套房", "主题房"}

var (
	exactSet = buildSet(ExactRoomTypes)
	fuzzySet = buildSet(FuzzyRoomTypes)
)

func buildSet(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// IsExactRoomType reports whether name belongs to the exact room type set.
func IsExactRoomType(name string) bool {
	_, ok := exactSet[name]
	return ok
}

// IsFuzzyRoomType reports whether name belongs to the fuzzy room type set.
func IsFuzzyRoomType(name string) bool {
	_, ok := fuzzySet[name]
	return ok
}

// Review is an immutable hotel review record.
// RoomType and FuzzyRoomType are empty when unknown; when set they are
// guaranteed members of their closed sets.
type Review struct {
	CommentID     string    `json:"comment_id"`
	Text          string    `json:"comment"`
	Score         float64   `json:"score"`
	PublishDate   time.Time `json:"publish_date"`
	QualityScore  float64   `json:"quality_score"`
	ReviewCount   int       `json:"review_count"`
	UsefulCount   int       `json:"useful_count"`
	RoomType      string    `json:"room_type"`
	FuzzyRoomType string    `json:"fuzzy_room_type"`
	Star          int       `json:"star"`
	TravelType    string    `json:"travel_type"`
}

// Table is the in-memory review lookup table.
// Lookup by comment ID is O(1); iteration order is load order.
type Table struct {
	byID  map[string]*Review
	order []string
}

// NewTable builds a table from loaded reviews. Reviews with out-of-set
// room types are normalized to empty rather than rejected.
func NewTable(reviews []Review) *Table {
	t := &Table{
		byID:  make(map[string]*Review, len(reviews)),
		order: make([]string, 0, len(reviews)),
	}
	for i := range reviews {
		r := reviews[i]
		if r.RoomType != "" && !IsExactRoomType(r.RoomType) {
			r.RoomType = ""
		}
		if r.FuzzyRoomType != "" && !IsFuzzyRoomType(r.FuzzyRoomType) {
			r.FuzzyRoomType = ""
		}
		if _, dup := t.byID[r.CommentID]; dup {
			continue
		}
		t.byID[r.CommentID] = &r
		t.order = append(t.order, r.CommentID)
	}
	return t
}

// Get returns the review with the given comment ID.
func (t *Table) Get(commentID string) (*Review, bool) {
	r, ok := t.byID[commentID]
	return r, ok
}

// Len returns the number of reviews in the table.
func (t *Table) Len() int {
	return len(t.byID)
}

// IDs returns comment IDs in load order.
func (t *Table) IDs() []string {
	return t.order
}

// Each calls fn for every review in load order.
func (t *Table) Each(fn func(*Review)) {
	for _, id := range t.order {
		fn(t.byID[id])
	}
}
