package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSubQueries(t *testing.T) {
	tests := []struct {
		name    string
		queries []SubQuery
		wantErr bool
	}{
		{
			name: "three queries summing to one",
			queries: []SubQuery{
				{Query: "交通", Weight: 0.6},
				{Query: "配套", Weight: 0.2},
				{Query: "服务", Weight: 0.2},
			},
		},
		{
			name:    "single full-weight query",
			queries: []SubQuery{{Query: "早餐", Weight: 1.0}},
		},
		{
			name: "two queries",
			queries: []SubQuery{
				{Query: "位置", Weight: 0.8},
				{Query: "价格", Weight: 0.2},
			},
		},
		{
			name: "weights not multiples of 0.2",
			queries: []SubQuery{
				{Query: "a", Weight: 0.5},
				{Query: "b", Weight: 0.5},
			},
			wantErr: true,
		},
		{
			name: "weights do not sum to one",
			queries: []SubQuery{
				{Query: "a", Weight: 0.4},
				{Query: "b", Weight: 0.4},
			},
			wantErr: true,
		},
		{
			name:    "empty list",
			queries: nil,
			wantErr: true,
		},
		{
			name: "too many queries",
			queries: []SubQuery{
				{Query: "a", Weight: 0.4}, {Query: "b", Weight: 0.2},
				{Query: "c", Weight: 0.2}, {Query: "d", Weight: 0.2},
			},
			wantErr: true,
		},
		{
			name: "empty query text",
			queries: []SubQuery{
				{Query: "", Weight: 1.0},
			},
			wantErr: true,
		},
		{
			name: "negative weight",
			queries: []SubQuery{
				{Query: "a", Weight: 1.2},
				{Query: "b", Weight: -0.2},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubQueries(tt.queries)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExpander_ValidExpansion(t *testing.T) {
	chat := &fakeChat{responses: []string{
		`{"rewritten_queries": [
			{"query": "酒店交通是否便利？", "weight": 0.6},
			{"query": "酒店周边有哪些配套设施？", "weight": 0.2},
			{"query": "酒店的服务效率如何？", "weight": 0.2}
		]}`,
	}}
	e := NewExpander(chat, nil)

	sub := e.Expand(context.Background(), "酒店方便吗")
	require.Len(t, sub, 3)
	assert.Equal(t, "酒店交通是否便利？", sub[0].Query)
	assert.InDelta(t, 0.6, sub[0].Weight, 1e-9)
}

func TestExpander_InvalidWeightsFallBack(t *testing.T) {
	// 0.5 is not a multiple of 0.2, so both attempts fail validation.
	chat := &fakeChat{responses: []string{
		`{"rewritten_queries": [{"query": "a", "weight": 0.5}, {"query": "b", "weight": 0.5}]}`,
	}}
	e := NewExpander(chat, nil)

	sub := e.Expand(context.Background(), "怎么样")
	assert.Nil(t, sub, "invalid expansion falls back to nil for the caller to substitute")
	assert.Equal(t, stageAttempts, chat.calls)
}

func TestExpander_CallFailureFallsBack(t *testing.T) {
	chat := &fakeChat{err: errors.New("rate limited")}
	e := NewExpander(chat, nil)

	assert.Nil(t, e.Expand(context.Background(), "酒店怎么样"))
}
