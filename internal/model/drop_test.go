package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testDrop(required int) *Drop {
	now := time.Now()
	return NewDrop("drop-1", "camp-1", "Test Drop", required,
		now.Add(-time.Hour), now.Add(time.Hour))
}

func TestDrop_ReportMinutes_NewerWins(t *testing.T) {
	d := testDrop(60)
	t0 := time.Now()

	assert.True(t, d.ReportMinutes(10, t0))
	assert.Equal(t, 10, d.CurrentMinutes())

	// an even newer report may regress progress; authoritative data wins
	assert.True(t, d.ReportMinutes(5, t0.Add(time.Minute)))
	assert.Equal(t, 5, d.CurrentMinutes())
}

func TestDrop_ReportMinutes_StaleRejected(t *testing.T) {
	d := testDrop(60)
	t0 := time.Now()

	assert.True(t, d.ReportMinutes(20, t0))
	assert.False(t, d.ReportMinutes(30, t0))
	assert.False(t, d.ReportMinutes(30, t0.Add(-time.Second)))
	assert.Equal(t, 20, d.CurrentMinutes())
}

func TestDrop_ReportMinutes_ClampsToRequired(t *testing.T) {
	d := testDrop(60)

	assert.True(t, d.ReportMinutes(500, time.Now()))
	assert.Equal(t, 60, d.CurrentMinutes())
	assert.True(t, d.Complete())
}

func TestDrop_ReportMinutes_ClearsExtrapolation(t *testing.T) {
	d := testDrop(60)
	d.ReportMinutes(10, time.Now())

	d.BumpMinute()
	d.BumpMinute()
	assert.Equal(t, 12, d.CurrentMinutes())
	assert.Equal(t, 2, d.ExtrapolatedMinutes())

	d.ReportMinutes(11, time.Now().Add(time.Minute))
	assert.Equal(t, 11, d.CurrentMinutes())
	assert.Equal(t, 0, d.ExtrapolatedMinutes())
}

func TestDrop_BumpMinute_Cap(t *testing.T) {
	d := testDrop(600)

	for i := 0; i < MaxExtrapolatedMinutes-1; i++ {
		assert.False(t, d.BumpMinute(), "bump %d should not hit the cap", i)
	}
	assert.True(t, d.BumpMinute())
	assert.Equal(t, MaxExtrapolatedMinutes, d.ExtrapolatedMinutes())
}

func TestDrop_BumpMinute_NoOpWhenDone(t *testing.T) {
	d := testDrop(5)
	d.ReportMinutes(5, time.Now())

	assert.False(t, d.BumpMinute())
	assert.Equal(t, 5, d.CurrentMinutes())

	claimed := testDrop(60)
	claimed.MarkClaimed()
	assert.False(t, claimed.BumpMinute())
}

func TestDrop_SeedMinutes_NeverRegresses(t *testing.T) {
	d := testDrop(60)
	d.SeedMinutes(30)
	assert.Equal(t, 30, d.CurrentMinutes())

	d.SeedMinutes(20)
	assert.Equal(t, 30, d.CurrentMinutes())

	d.SeedMinutes(40)
	assert.Equal(t, 40, d.CurrentMinutes())
}

func TestDrop_MarkClaimed_PinsProgress(t *testing.T) {
	d := testDrop(60)
	d.ReportMinutes(10, time.Now())

	d.MarkClaimed()
	assert.True(t, d.IsClaimed)
	assert.Equal(t, 60, d.CurrentMinutes())
	assert.Equal(t, 0, d.ExtrapolatedMinutes())
}

func TestDrop_HasWantedBenefit(t *testing.T) {
	d := testDrop(60)
	d.Benefits = []Benefit{{ID: "b1", Name: "Skin", Type: BenefitItem}}

	assert.True(t, d.HasWantedBenefit(map[BenefitType]bool{BenefitItem: true}))
	assert.False(t, d.HasWantedBenefit(map[BenefitType]bool{BenefitItem: false}))
	// a type missing from the gates is treated as wanted
	assert.True(t, d.HasWantedBenefit(map[BenefitType]bool{BenefitBadge: false}))
}
