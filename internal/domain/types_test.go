package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
}

func TestParseSide(t *testing.T) {
	side, err := ParseSide("buy")
	assert.NoError(t, err)
	assert.Equal(t, SideBuy, side)

	side, err = ParseSide("sell")
	assert.NoError(t, err)
	assert.Equal(t, SideSell, side)

	_, err = ParseSide("hold")
	assert.Error(t, err)
	_, err = ParseSide("BUY")
	assert.Error(t, err)
}

func TestCredentialsEmpty(t *testing.T) {
	var nilCreds *Credentials
	assert.True(t, nilCreds.Empty())
	assert.True(t, (&Credentials{}).Empty())
	assert.False(t, (&Credentials{Login: 1}).Empty())
	assert.False(t, (&Credentials{Server: "Demo"}).Empty())
}

func TestTradeRequestValidate(t *testing.T) {
	valid := TradeRequest{Symbol: "EURUSD", Side: SideBuy, Volume: 0.1}
	assert.NoError(t, valid.Validate())

	bad := []TradeRequest{
		{Side: SideBuy, Volume: 0.1},
		{Symbol: "EURUSD", Side: "hold", Volume: 0.1},
		{Symbol: "EURUSD", Side: SideSell, Volume: 0},
		{Symbol: "EURUSD", Side: SideSell, Volume: -0.1},
	}
	for i := range bad {
		assert.Error(t, bad[i].Validate(), "case %d", i)
	}
}
