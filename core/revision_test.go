package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	data := RecordData{
		Query:             "Which country uses these yellow license plates?",
		GroundTruthAnswer: "Netherlands",
	}
	record := NewRecord(data)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, 1, record.Version)
	assert.Empty(t, record.History)
	assert.Equal(t, record.CreatedAt, record.UpdatedAt)
	assert.NoError(t, ValidateRecord(record))
}

func TestApplyUpdate(t *testing.T) {
	record := NewRecord(RecordData{
		Query:             "Is this a Mediterranean climate?",
		GroundTruthAnswer: "Yes",
	})

	ApplyUpdate(record, RecordData{
		Query:             "Is this a Mediterranean or tropical climate?",
		GroundTruthAnswer: "Mediterranean",
		Solution:          "Terracotta roofs and dry scrub vegetation.",
	})

	require.Equal(t, 2, record.Version)
	require.Len(t, record.History, 1)
	assert.Equal(t, 1, record.History[0].Version)
	assert.Equal(t, ActionCreate, record.History[0].Action)
	assert.Equal(t, "Is this a Mediterranean climate?", record.History[0].Data.Query)
	assert.Equal(t, "Mediterranean", record.GroundTruthAnswer)
	assert.True(t, record.UpdatedAt.After(record.CreatedAt) || record.UpdatedAt.Equal(record.CreatedAt))
	assert.NoError(t, ValidateRecord(record))
}

func TestApplyUpdate_SequenceKeepsHistoryOrdered(t *testing.T) {
	record := NewRecord(RecordData{Query: "q1", GroundTruthAnswer: "a1"})

	for i := 0; i < 5; i++ {
		ApplyUpdate(record, RecordData{Query: "q1", GroundTruthAnswer: "a1", Solution: "pass"})
	}

	require.Equal(t, 6, record.Version)
	require.Len(t, record.History, 5)
	for i, h := range record.History {
		assert.Equal(t, i+1, h.Version)
	}
	assert.Equal(t, ActionCreate, record.History[0].Action)
	assert.Equal(t, ActionUpdate, record.History[1].Action)
	assert.NoError(t, ValidateRecord(record))
}

func TestRecordClone_IsDeep(t *testing.T) {
	record := NewRecord(RecordData{
		Query:             "q",
		GroundTruthAnswer: "a",
		Tags:              map[string]any{"region": "asia", "labels": []string{"x"}},
	})
	ApplyUpdate(record, RecordData{
		Query:             "q2",
		GroundTruthAnswer: "a2",
		Tags:              map[string]any{"region": "asia"},
	})

	clone := record.Clone()
	clone.History[0].Data.Query = "mutated"
	clone.History[0].Data.Tags["region"] = "europe"
	clone.Tags["extra"] = true

	assert.Equal(t, "q", record.History[0].Data.Query)
	assert.Equal(t, "asia", record.History[0].Data.Tags["region"])
	assert.NotContains(t, record.Tags, "extra")
}
