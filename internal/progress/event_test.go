package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestEventValidate exercises the per-stage validation rules.
func TestEventValidate(t *testing.T) {
	t.Parallel()

	id := UUIDToBytes(uuid.New())
	now := time.Now()

	cases := []struct {
		name    string
		evt     Event
		wantErr string
	}{
		{
			name: "valid run start",
			evt:  Event{RunID: id, TS: now, Stage: StageRunStart, Planned: 50},
		},
		{
			name: "valid addr done",
			evt:  Event{RunID: id, TS: now, Stage: StageAddrDone, Address: "압구정동 1-1", Result: ResultSuccess, Archived: true},
		},
		{
			name:    "missing run id",
			evt:     Event{TS: now, Stage: StageRunStart},
			wantErr: "run id",
		},
		{
			name:    "missing timestamp",
			evt:     Event{RunID: id, Stage: StageRunStart},
			wantErr: "timestamp",
		},
		{
			name:    "run done without outcome",
			evt:     Event{RunID: id, TS: now, Stage: StageRunDone},
			wantErr: "outcome",
		},
		{
			name:    "addr start without address",
			evt:     Event{RunID: id, TS: now, Stage: StageAddrStart},
			wantErr: "requires address",
		},
		{
			name:    "addr done with unknown result",
			evt:     Event{RunID: id, TS: now, Stage: StageAddrDone, Address: "압구정동 1-1", Result: "partial"},
			wantErr: "unknown result",
		},
		{
			name:    "artifact upload without name",
			evt:     Event{RunID: id, TS: now, Stage: StageArtifactUploaded},
			wantErr: "artifact name",
		},
		{
			name:    "unknown stage",
			evt:     Event{RunID: id, TS: now, Stage: "ADDR_RETRY"},
			wantErr: "unknown stage",
		},
		{
			name:    "negative duration",
			evt:     Event{RunID: id, TS: now, Stage: StageRunStart, Dur: -time.Second},
			wantErr: "duration",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.evt.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

// TestRunUUIDRoundTrip checks the binary and uuid forms convert losslessly.
func TestRunUUIDRoundTrip(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	evt := Event{RunID: UUIDToBytes(id)}
	require.Equal(t, id, evt.RunUUID())
}
