package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDivisionFromKey(t *testing.T) {
	assert.Equal(t, DivisionWTA, DivisionFromKey("madrid_wta"))
	assert.Equal(t, DivisionWTA, DivisionFromKey("MADRID_WTA_QUALIFIERS"))
	assert.Equal(t, DivisionATP, DivisionFromKey("madrid"))
	assert.Equal(t, DivisionATP, DivisionFromKey("wimbledon_atp"))
}

func TestTournamentName(t *testing.T) {
	assert.Equal(t, "Madrid Open", TournamentName("madrid_open"))
	assert.Equal(t, "Us Open Wta", TournamentName("us_open_wta"))
	assert.Equal(t, "Wimbledon", TournamentName("wimbledon"))
}

func TestFrame_UnderdogByHigherOdds(t *testing.T) {
	r := MatchRecord{PlayerA: "Nadal R.", PlayerB: "Smith J.", OddsA: 1.25, OddsB: 3.8}
	r.Frame(true, false)

	assert.Equal(t, "Smith J.", r.Underdog)
	assert.Equal(t, 3.8, r.UnderdogOdds)
	assert.False(t, r.UnderdogWon)
	assert.Equal(t, "Nadal R.", r.Favorite)
	assert.Equal(t, 1.25, r.FavoriteOdds)
	assert.True(t, r.FavoriteWon)
}

func TestFrame_TieBreaksToPlayerA(t *testing.T) {
	r := MatchRecord{PlayerA: "A", PlayerB: "B", OddsA: 1.9, OddsB: 1.9}
	r.Frame(false, true)

	assert.Equal(t, "A", r.Underdog)
	assert.False(t, r.UnderdogWon)
	assert.Equal(t, "B", r.Favorite)
	assert.True(t, r.FavoriteWon)
}

func TestFrame_SentinelOddsBothSides(t *testing.T) {
	r := MatchRecord{PlayerA: "A", PlayerB: "B", OddsA: SentinelOdds, OddsB: SentinelOdds}
	r.Frame(true, false)

	assert.Equal(t, "A", r.Underdog)
	assert.True(t, r.UnderdogWon)
	assert.False(t, r.HasOdds())
}

func TestWinner(t *testing.T) {
	r := MatchRecord{PlayerA: "A", PlayerB: "B", OddsA: 2.5, OddsB: 1.5}

	r.Frame(true, false)
	if assert.NotNil(t, r.Winner()) {
		assert.Equal(t, "A", *r.Winner())
	}

	r.Frame(false, true)
	if assert.NotNil(t, r.Winner()) {
		assert.Equal(t, "B", *r.Winner())
	}

	r.Frame(false, false)
	assert.Nil(t, r.Winner())

	r.Frame(true, true)
	assert.Nil(t, r.Winner())
}

func TestHasOdds(t *testing.T) {
	assert.True(t, (&MatchRecord{OddsA: 1.5, OddsB: 2.5}).HasOdds())
	assert.False(t, (&MatchRecord{OddsA: SentinelOdds, OddsB: 2.5}).HasOdds())
	assert.False(t, (&MatchRecord{OddsA: 1.5, OddsB: SentinelOdds}).HasOdds())
}
