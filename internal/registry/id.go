package registry

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout formats the time component of generated ids.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// maxIDAttempts bounds re-rolls of a colliding id suffix.
const maxIDAttempts = 64

// Clock supplies the time component of generated ids.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// SuffixGenerator supplies the random component of generated ids.
type SuffixGenerator interface {
	Generate() string
}

// UUIDSuffix derives five decimal digits from a random UUID.
//
// Thread-safety: UUIDSuffix is stateless and safe for concurrent use.
type UUIDSuffix struct{}

// Generate returns a suffix in the range 00000-99999.
func (UUIDSuffix) Generate() string {
	u := uuid.New()
	return fmt.Sprintf("%05d", binary.BigEndian.Uint32(u[:4])%100000)
}

// FormatID builds an id of the form <type-name>|<timestamp>|<suffix>.
func FormatID(typeName string, at time.Time, suffix string) string {
	return typeName + "|" + at.UTC().Format(TimestampLayout) + "|" + suffix
}

// generateIDLocked returns an id unused by live and pending entries.
// Caller must hold r.mu.
func (r *Registry) generateIDLocked(typeName string) (string, error) {
	stamp := r.clock.Now()
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id := FormatID(typeName, stamp, r.suffixes.Generate())
		if !r.knownLocked(id) {
			return id, nil
		}
		r.collisions.Add(1)
		r.logger.Debug("id collision, re-rolling suffix",
			"error", &idCollisionError{ID: id},
			"attempt", attempt)
	}
	return "", fmt.Errorf("generate id for %s: no free id after %d attempts", typeName, maxIDAttempts)
}

// GenerateID returns a fresh id for a resource of the given type without
// registering anything.
func (r *Registry) GenerateID(typeName string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generateIDLocked(typeName)
}

// Collisions returns how many generated ids had to be re-rolled.
func (r *Registry) Collisions() int64 {
	return r.collisions.Load()
}
