package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AlarmKey is the single reserved key holding the scheduled alarm time. It
// is stored through the same value+sidecar machinery as ordinary keys but is
// only reachable through the dedicated accessors: it never shows up in
// listings, and the layer above rejects it as an object name.
const AlarmKey = "__alarm__"

// GetAlarm returns the scheduled alarm time in unix milliseconds, or 0 when
// no alarm is set.
func (s *FileStore) GetAlarm(ctx context.Context) (int64, error) {
	_, value, err := s.Get(ctx, AlarmKey)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(value)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt alarm value %q: %w", value, err)
	}
	return ms, nil
}

// SetAlarm schedules the alarm at the given unix-millisecond time,
// replacing any previous schedule.
func (s *FileStore) SetAlarm(ctx context.Context, scheduledTimeMs int64) error {
	value := []byte(strconv.FormatInt(scheduledTimeMs, 10))
	return s.Put(ctx, AlarmKey, value, Record{Key: AlarmKey})
}

// DeleteAlarm clears any scheduled alarm. Clearing an unset alarm is not an
// error.
func (s *FileStore) DeleteAlarm(ctx context.Context) error {
	_, err := s.Delete(ctx, AlarmKey)
	return err
}
