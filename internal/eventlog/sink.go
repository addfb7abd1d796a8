package eventlog

import "context"

// Sink fans one canonical event out to both the per-session JSONL file and
// the indexed store, satisfying spec §4.13's "(a) ... and (b) ..." in one
// call. Either half may be nil (e.g. a replay-only deployment with no
// sqlite store configured), in which case that half is simply skipped.
type Sink struct {
	JSONL *JSONLWriter
	Store *Store
}

// Record appends ev to every configured backing store.
func (s *Sink) Record(ctx context.Context, ev Event) error {
	if s.JSONL != nil {
		if err := s.JSONL.Append(ev); err != nil {
			return err
		}
	}
	if s.Store != nil {
		return s.Store.AppendEvent(ctx, ev)
	}
	return nil
}
