package refresh

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Metadata keys holding the persisted refresh state.
const (
	KeyLastRefresh    = "last_refresh"
	KeyLastStatus     = "last_refresh_status"
	KeyLastAdded      = "last_refresh_added"
	KeyLastTotal      = "last_refresh_total"
	KeyLastErrorCount = "last_refresh_error_count"
)

var stateKeys = []string{KeyLastRefresh, KeyLastStatus, KeyLastAdded, KeyLastTotal, KeyLastErrorCount}

type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// DeriveStatus maps a cycle's error count and additions to its status.
func DeriveStatus(errorCount, added int) Status {
	switch {
	case errorCount == 0:
		return StatusSuccess
	case added > 0:
		return StatusWarning
	default:
		return StatusError
	}
}

// State is the outcome of the last completed cycle as persisted. LastRefresh
// is nil before the first cycle.
type State struct {
	LastRefresh *time.Time `json:"lastRefresh"`
	Status      Status     `json:"status,omitempty"`
	Added       int        `json:"added"`
	Total       int        `json:"total"`
	ErrorCount  int        `json:"errorCount"`
}

func (s State) values() map[string]string {
	v := map[string]string{
		KeyLastStatus:     string(s.Status),
		KeyLastAdded:      strconv.Itoa(s.Added),
		KeyLastTotal:      strconv.Itoa(s.Total),
		KeyLastErrorCount: strconv.Itoa(s.ErrorCount),
	}
	if s.LastRefresh != nil {
		v[KeyLastRefresh] = s.LastRefresh.UTC().Format(time.RFC3339)
	}
	return v
}

// ReadState loads the persisted state. Unparseable values are treated as absent.
func ReadState(ctx context.Context, store MetadataStore) (State, error) {
	vals, err := store.GetMetadataKeys(ctx, stateKeys...)
	if err != nil {
		return State{}, fmt.Errorf("read refresh state: %w", err)
	}

	var st State
	if raw, ok := vals[KeyLastRefresh]; ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			t = t.UTC()
			st.LastRefresh = &t
		}
	}
	st.Status = Status(vals[KeyLastStatus])
	st.Added, _ = strconv.Atoi(vals[KeyLastAdded])
	st.Total, _ = strconv.Atoi(vals[KeyLastTotal])
	st.ErrorCount, _ = strconv.Atoi(vals[KeyLastErrorCount])
	return st, nil
}
