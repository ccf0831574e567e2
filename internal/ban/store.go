// Package ban tracks IP bans with lazy expiry and carries out forced
// disconnects for moderation commands.
package ban

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PermanentMinutes encodes "perm" as one year, large enough to outlive any
// realistic deployment but still a finite expiry.
const PermanentMinutes = 525600

// Record is one active ban. At most one record exists per IP.
type Record struct {
	IP     string
	Expiry time.Time
	Reason string
}

// Persister stores records across restarts. Implementations must tolerate
// redundant deletes.
type Persister interface {
	Save(rec Record) error
	Delete(ip string) error
	LoadAll() ([]Record, error)
}

// Kicker severs live connections by source IP. The core session index
// implements it; it is wired in after construction to keep this package free
// of a dependency on the session layer.
type Kicker interface {
	KickIP(ip, reason string) int
}

// Store answers ban queries and records new bans. Reads are concurrent,
// writes serialized. Expired records are dropped on the query that finds
// them; there is no background sweep.
type Store struct {
	mu      sync.RWMutex
	records map[string]Record

	now     func() time.Time
	log     *zerolog.Logger
	persist Persister

	kickMu sync.RWMutex
	kicker Kicker
}

// NewStore builds a Store, loading any persisted records that have not yet
// expired. persist may be nil for an in-memory store.
func NewStore(logger *zerolog.Logger, persist Persister, now func() time.Time) (*Store, error) {
	if now == nil {
		now = time.Now
	}
	s := &Store{
		records: make(map[string]Record),
		now:     now,
		log:     logger,
		persist: persist,
	}

	if persist != nil {
		recs, err := persist.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if rec.Expiry.After(now()) {
				s.records[rec.IP] = rec
			} else if err := persist.Delete(rec.IP); err != nil {
				logger.Warn().Err(err).Str("ip", rec.IP).Msg("drop expired ban record")
			}
		}
	}

	return s, nil
}

// SetKicker wires the live-session disconnector used by Kick.
func (s *Store) SetKicker(k Kicker) {
	s.kickMu.Lock()
	s.kicker = k
	s.kickMu.Unlock()
}

// IsBanned reports whether ip has a ban with expiry in the future.
func (s *Store) IsBanned(ip string) bool {
	_, ok := s.Get(ip)
	return ok
}

// Get returns the active record for ip, expiring it lazily if stale.
func (s *Store) Get(ip string) (Record, bool) {
	s.mu.RLock()
	rec, ok := s.records[ip]
	s.mu.RUnlock()
	if !ok {
		return Record{}, false
	}
	if rec.Expiry.After(s.now()) {
		return rec, true
	}

	s.mu.Lock()
	// Re-check: another goroutine may have replaced the record meanwhile.
	if cur, still := s.records[ip]; still && !cur.Expiry.After(s.now()) {
		delete(s.records, ip)
		if s.persist != nil {
			if err := s.persist.Delete(ip); err != nil {
				s.log.Warn().Err(err).Str("ip", ip).Msg("delete expired ban record")
			}
		}
	}
	s.mu.Unlock()
	return Record{}, false
}

// Remaining returns the reason and minutes left on an active ban.
func (s *Store) Remaining(ip string) (reason string, minutes int, ok bool) {
	rec, ok := s.Get(ip)
	if !ok {
		return "", 0, false
	}
	left := rec.Expiry.Sub(s.now())
	return rec.Reason, int(left.Round(time.Minute) / time.Minute), true
}

// AddBan inserts or replaces the record for ip with expiry now + minutes.
// Any live connection from that IP is severed immediately.
func (s *Store) AddBan(ip string, minutes int, reason string) {
	rec := Record{
		IP:     ip,
		Expiry: s.now().Add(time.Duration(minutes) * time.Minute),
		Reason: reason,
	}

	s.mu.Lock()
	s.records[ip] = rec
	if s.persist != nil {
		if err := s.persist.Save(rec); err != nil {
			s.log.Warn().Err(err).Str("ip", ip).Msg("persist ban record")
		}
	}
	s.mu.Unlock()

	s.log.Info().Str("ip", ip).Int("minutes", minutes).Str("reason", reason).Msg("ban added")
	s.Kick(ip, reason)
}

// Kick force-disconnects every live session from ip. No record is written;
// the target can reconnect immediately unless separately banned.
func (s *Store) Kick(ip, reason string) {
	s.kickMu.RLock()
	k := s.kicker
	s.kickMu.RUnlock()
	if k == nil {
		return
	}
	if n := k.KickIP(ip, reason); n > 0 {
		s.log.Info().Str("ip", ip).Int("sessions", n).Str("reason", reason).Msg("kicked")
	}
}

// ParseLength converts a ban length argument to minutes. Accepted forms are
// "<n>h", "<n>d", "<n>w" and "perm"; anything else falls back to
// defaultMinutes.
func ParseLength(arg string, defaultMinutes int) int {
	if arg == "perm" {
		return PermanentMinutes
	}

	var perUnit int
	switch {
	case strings.HasSuffix(arg, "h"):
		perUnit = 60
	case strings.HasSuffix(arg, "d"):
		perUnit = 1440
	case strings.HasSuffix(arg, "w"):
		perUnit = 10080
	default:
		return defaultMinutes
	}

	n, err := strconv.Atoi(arg[:len(arg)-1])
	if err != nil || n <= 0 {
		return defaultMinutes
	}
	return n * perUnit
}
