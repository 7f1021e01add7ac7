package resident

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"character-hunter/src/coordinator"
)

const defaultProbeTimeout = 300 * time.Millisecond

func baseURL(port int) string {
	return "http://" + net.JoinHostPort(residentHost, strconv.Itoa(port))
}

// Ping reports whether a resident answers on port.
func Ping(ctx context.Context, port int) bool {
	timeout := defaultProbeTimeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			timeout = d
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(port)+"/ping", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	return err == nil && resp.StatusCode == http.StatusOK && string(body) == pongBody
}

// DetectResident scans [start, end] and returns the first port with a
// responding resident.
func DetectResident(ctx context.Context, start, end int) (int, bool) {
	for port := start; port <= end; port++ {
		if ctx.Err() != nil {
			return 0, false
		}
		if Ping(ctx, port) {
			return port, true
		}
	}
	return 0, false
}

// FetchStatus reads the resident's current snapshot.
func FetchStatus(ctx context.Context, port int) (coordinator.Snapshot, error) {
	var snap coordinator.Snapshot
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(port)+"/status", nil)
	if err != nil {
		return snap, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return snap, fmt.Errorf("resident: status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("resident: status: unexpected %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("resident: decode status: %w", err)
	}
	return snap, nil
}
