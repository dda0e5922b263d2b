package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRawEvent(t *testing.T) {
	payload := map[string]interface{}{"amount": 10}
	raw := NewRawEvent("shopify", ChannelWebhook, payload)

	assert.NotEmpty(t, raw.ID)
	assert.Equal(t, StatusPending, raw.Status)
	assert.False(t, raw.ReceivedAt.IsZero())

	payload["amount"] = 99
	assert.Equal(t, 10, raw.Payload["amount"])
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"pending to processed", StatusPending, StatusProcessed, false},
		{"pending to failed", StatusPending, StatusFailed, false},
		{"pending to ignored", StatusPending, StatusIgnored, false},
		{"pending to pending", StatusPending, StatusPending, true},
		{"processed is final", StatusProcessed, StatusFailed, true},
		{"ignored is final", StatusIgnored, StatusProcessed, true},
		{"failed is final", StatusFailed, StatusFailed, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := &RawEvent{ID: "r", Status: tt.from}
			err := raw.Transition(tt.to, "why")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.from, raw.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, raw.Status)
			assert.Equal(t, "why", raw.Reason)
		})
	}
}

func TestIntentAndChannel(t *testing.T) {
	assert.True(t, IntentInventory.Valid())
	assert.False(t, Intent("PROFIT").Valid())
	assert.True(t, ChannelFile.Valid())
	assert.False(t, Channel("email").Valid())
}

func TestWithIntentCopiesMetadata(t *testing.T) {
	ev := &NormalizedEvent{Intent: IntentRevenue, Metadata: map[string]interface{}{"k": "v"}}
	cp := ev.WithIntent(IntentCost)
	cp.Metadata["k"] = "changed"

	assert.Equal(t, IntentRevenue, ev.Intent)
	assert.Equal(t, "v", ev.Metadata["k"])
}
