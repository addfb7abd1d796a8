package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// ReplayReport summarizes one session's canonical JSONL for offline
// inspection.
type ReplayReport struct {
	TotalEvents        int            `json:"totalEvents"`
	ByType             map[string]int `json:"byType"`
	DeterministicOrder bool           `json:"deterministicOrder"`
	Warnings           []string       `json:"warnings"`
}

// ReplayFile reads a session's JSONL file at path and reports
// {totalEvents, byType, deterministicOrder, warnings}, where determinism
// means timestamps are non-decreasing and control_request/control_response
// counts match (spec §4.13's replay tool).
func ReplayFile(path string) (*ReplayReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	defer f.Close()

	report := &ReplayReport{
		ByType:             make(map[string]int),
		DeterministicOrder: true,
	}

	var lastTimestamp int64
	var requests, responses int
	first := true

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("line %d: invalid JSON: %v", lineNo, err))
			continue
		}

		report.TotalEvents++
		report.ByType[string(ev.Kind)]++

		switch ev.Kind {
		case KindControlRequest:
			requests++
		case KindControlResponse:
			responses++
		}

		if !first && ev.CreatedAtEpoch < lastTimestamp {
			report.DeterministicOrder = false
			report.Warnings = append(report.Warnings, fmt.Sprintf("line %d: timestamp %d precedes prior %d", lineNo, ev.CreatedAtEpoch, lastTimestamp))
		}
		lastTimestamp = ev.CreatedAtEpoch
		first = false
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: scan %s: %w", path, err)
	}

	if requests != responses {
		report.DeterministicOrder = false
		report.Warnings = append(report.Warnings, fmt.Sprintf("control_request count (%d) does not match control_response count (%d)", requests, responses))
	}

	return report, nil
}
