package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/storm-risk-service/internal/domain"
	"github.com/couchcryptid/storm-risk-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() domain.HotZoneSnapshot {
	return domain.HotZoneSnapshot{
		CycleID:     "5f0c3b7e-2d4a-4d8e-9a77-0b6a1f1e2c3d",
		GeneratedAt: time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC),
		Zones: []domain.HotZone{
			{
				Region: "California", Lat: 34.0, Lon: -118.0,
				Seismic:    domain.SeismicSummary{EventCount: 3, MaxMagnitude: 6.5, RecentCount: 1},
				Assessment: domain.RiskAssessment{Score: 46, Level: domain.LevelElevated},
			},
			{
				Region:     "Hawaii",
				Assessment: domain.RiskAssessment{Score: 30, Level: domain.LevelModerate},
			},
		},
	}
}

func TestSerializeZone(t *testing.T) {
	snap := testSnapshot()

	msg, err := serializeZone(snap, 0)
	require.NoError(t, err)

	assert.Equal(t, []byte("California"), msg.Key)
	var zone domain.HotZone
	require.NoError(t, json.Unmarshal(msg.Value, &zone))
	assert.Equal(t, 46, zone.Assessment.Score)
	assert.Equal(t, 3, zone.Seismic.EventCount)

	require.Len(t, msg.Headers, 4)
	assert.Equal(t, "cycle_id", msg.Headers[0].Key)
	assert.Equal(t, []byte(snap.CycleID), msg.Headers[0].Value)
	assert.Equal(t, "generated_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2024-04-26T15:10:00Z"), msg.Headers[1].Value)
	assert.Equal(t, []byte("1"), msg.Headers[2].Value)
	assert.Equal(t, []byte("ELEVATED"), msg.Headers[3].Value)
}

func TestSerializeZone_RankIsOneBased(t *testing.T) {
	msg, err := serializeZone(testSnapshot(), 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("Hawaii"), msg.Key)
	assert.Equal(t, []byte("2"), msg.Headers[2].Value)
}

func TestPublisher_EmptySnapshotIsNoop(t *testing.T) {
	// No broker is reachable; an empty snapshot must not try to write.
	p := NewPublisher([]string{"127.0.0.1:1"}, "hot-zones", observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer p.Close()

	require.NoError(t, p.Publish(context.Background(), domain.HotZoneSnapshot{CycleID: "empty"}))
}
