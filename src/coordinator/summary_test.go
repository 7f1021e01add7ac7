package coordinator

import "testing"

func TestSnapshotSummary(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want string
	}{
		{"idle", Snapshot{State: "idle"}, "Idle: waiting for a search"},
		{"active", Snapshot{State: "active", Subject: "Pikachu", Source: "Pokemon"}, "Hunting Pikachu (Pokemon)"},
		{"stale", Snapshot{State: "stale", Subject: "Mario"}, "Stale: Mario (search again)"},
		{
			"counters",
			Snapshot{State: "active", Subject: "Link", Counters: Counters{Saved: 4, Duplicates: 1, Ignored: 2}},
			"Hunting Link | saved 4, duplicates 1, ignored 2",
		},
		{
			"failures",
			Snapshot{State: "idle", Counters: Counters{Failed: 1, Dropped: 2}},
			"Idle: waiting for a search | saved 0, duplicates 0, ignored 0, failed 1, dropped 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.Summary(); got != tt.want {
				t.Errorf("Summary = %q, expected %q", got, tt.want)
			}
		})
	}
}
