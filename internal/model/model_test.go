package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVehicleRef(t *testing.T) {
	assert.False(t, NoVehicle.Linked())
	id, ok := NoVehicle.ID()
	assert.False(t, ok)
	assert.Empty(t, id)

	assert.Equal(t, NoVehicle, LinkVehicle(""))

	ref := LinkVehicle("veh-1")
	id, ok = ref.ID()
	assert.True(t, ok)
	assert.Equal(t, "veh-1", id)
	assert.Equal(t, "veh-1", ref.String())
	assert.Equal(t, "<unlinked>", NoVehicle.String())
}

func TestParseCondition(t *testing.T) {
	cases := map[string]PartCondition{"good": ConditionGood, " Medium ": ConditionMedium, "BAD": ConditionBad}
	for in, want := range cases {
		got, ok := ParseCondition(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	_, ok := ParseCondition("excellent")
	assert.False(t, ok)

	assert.False(t, ConditionGood.NeedsAttention())
	assert.True(t, ConditionMedium.NeedsAttention())
	assert.True(t, ConditionBad.NeedsAttention())
}

func TestPartDisplayDate(t *testing.T) {
	p := PartStatus{UpdatedAt: time.Date(2024, 3, 7, 15, 0, 0, 0, time.UTC)}
	assert.Equal(t, "03/07/2024", p.DisplayDate())
	assert.Empty(t, PartStatus{}.DisplayDate())
}

func TestDistinctPartsKeepsFirstByName(t *testing.T) {
	got := DistinctParts([]PartStatus{
		{Name: "Tires", Status: ConditionGood},
		{Name: " brakes", Status: ConditionBad},
		{Name: "TIRES ", Status: ConditionBad},
	})
	require.Len(t, got, 2)
	assert.Equal(t, ConditionGood, got[0].Status)
	assert.Equal(t, "brakes", PartKey(got[1].Name))
}

func TestExternalRecallRecord(t *testing.T) {
	e := ExternalRecall{CampaignNumber: "24V200", Manufacturer: "Honda", Component: "BRAKES"}
	r := e.Record("veh-1", "Brake issue")
	assert.Equal(t, "veh-1", r.VehicleID)
	assert.Equal(t, "24V200", r.CampaignNumber)
	assert.Equal(t, RecallIncomplete, r.Status)
	assert.Equal(t, "Brake issue", r.ShortSummary)
}

func TestVehicleComplete(t *testing.T) {
	assert.True(t, Vehicle{Make: "Honda", Model: "Civic", Year: 2018}.Complete())
	assert.False(t, Vehicle{Make: "Honda", Model: "", Year: 2018}.Complete())
	assert.False(t, Vehicle{Make: "Honda", Model: "Civic"}.Complete())
}
