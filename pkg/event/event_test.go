package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	body := []byte(`{
		"chainId": "0x1",
		"confirmed": true,
		"erc20Transfers": [
			{
				"transactionHash": "0xhash1",
				"logIndex": 3,
				"from": "0xAAA",
				"to": "0xBBB",
				"value": "50000000000",
				"tokenName": "Tether USD",
				"tokenSymbol": "USDT",
				"tokenDecimals": "6"
			}
		]
	}`)

	now := time.Now()
	events, err := Normalize(body, now)
	assert.NoError(t, err)
	assert.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "0xhash1", ev.TransactionHash)
	assert.Equal(t, 3, ev.LogIndex)
	assert.Equal(t, "0xAAA", ev.From)
	assert.Equal(t, "0xBBB", ev.To)
	assert.Equal(t, "50000000000", ev.Value)
	assert.Equal(t, "Tether USD", ev.TokenName)
	assert.Equal(t, "USDT", ev.TokenSymbol)
	assert.Equal(t, 6, ev.TokenDecimals)
	assert.Equal(t, "0x1", ev.ChainID)
	assert.True(t, ev.Confirmed)
	assert.Equal(t, now, ev.ReceivedAt)
}

func TestNormalize_EmptyList(t *testing.T) {
	events, err := Normalize([]byte(`{"chainId":"0x1","erc20Transfers":[]}`), time.Now())
	assert.NoError(t, err)
	assert.Empty(t, events)

	// Absent list behaves the same as an empty one
	events, err = Normalize([]byte(`{"chainId":"0x1"}`), time.Now())
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func TestNormalize_Malformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"wrong type", `[1,2,3]`},
		{"missing hash", `{"erc20Transfers":[{"from":"0xA","to":"0xB","value":"1"}]}`},
		{"missing from", `{"erc20Transfers":[{"transactionHash":"0x1","to":"0xB","value":"1"}]}`},
		{"missing to", `{"erc20Transfers":[{"transactionHash":"0x1","from":"0xA","value":"1"}]}`},
		{"missing value", `{"erc20Transfers":[{"transactionHash":"0x1","from":"0xA","to":"0xB"}]}`},
		{"float value", `{"erc20Transfers":[{"transactionHash":"0x1","from":"0xA","to":"0xB","value":"1.5"}]}`},
		{"negative value", `{"erc20Transfers":[{"transactionHash":"0x1","from":"0xA","to":"0xB","value":"-1"}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize([]byte(tc.body), time.Now())
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestNormalize_BigValue(t *testing.T) {
	// Values above 64-bit range must survive without precision loss
	body := []byte(`{"erc20Transfers":[{"transactionHash":"0x1","from":"0xA","to":"0xB","value":"115792089237316195423570985008687907853269984665640564039457584007913129639935"}]}`)
	events, err := Normalize(body, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", events[0].Value)
}

func TestNormalize_MultipleRecords(t *testing.T) {
	body := []byte(`{"erc20Transfers":[
		{"transactionHash":"0x1","from":"0xA","to":"0xB","value":"1","logIndex":0},
		{"transactionHash":"0x2","from":"0xC","to":"0xD","value":"2","logIndex":"7"}
	]}`)
	events, err := Normalize(body, time.Now())
	assert.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 0, events[0].LogIndex)
	assert.Equal(t, 7, events[1].LogIndex)
}
