package config

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ListStore holds the operator ID lists behind a read-write mutex so the
// reload command can swap them while update handlers keep reading.
// Loading is lenient the way the CSV files are maintained: a missing or
// unreadable file keeps the previous snapshot and logs the problem
// instead of taking the bot down.
type ListStore struct {
	mu     sync.RWMutex
	cfg    ListsConfig
	logger *logrus.Logger

	allowedUsers    map[int64]struct{}
	largeGroups     []int64
	allGroups       []int64
	monitoredGroups map[int64]struct{}
}

// ListCounts reports how many IDs each list holds after a (re)load.
type ListCounts struct {
	AllowedUsers    int
	LargeGroups     int
	AllGroups       int
	MonitoredGroups int
}

// NewListStore creates an empty store; call Reload to populate it.
func NewListStore(cfg ListsConfig, logger *logrus.Logger) *ListStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &ListStore{
		cfg:             cfg,
		logger:          logger,
		allowedUsers:    map[int64]struct{}{},
		monitoredGroups: map[int64]struct{}{},
	}
}

// Reload re-reads every CSV list. Lists whose file cannot be read keep
// their previous contents.
func (s *ListStore) Reload() ListCounts {
	users := s.loadList(s.cfg.AllowedUsers, "allowed user")
	large := s.loadList(s.cfg.LargeGroups, "large group")
	all := s.loadList(s.cfg.AllGroups, "all group")
	monitored := s.loadList(s.cfg.MonitoredGroups, "monitored group")

	s.mu.Lock()
	defer s.mu.Unlock()
	if users != nil {
		s.allowedUsers = toSet(users)
	}
	if large != nil {
		s.largeGroups = large
	}
	if all != nil {
		s.allGroups = all
	}
	if monitored != nil {
		s.monitoredGroups = toSet(monitored)
	}
	return ListCounts{
		AllowedUsers:    len(s.allowedUsers),
		LargeGroups:     len(s.largeGroups),
		AllGroups:       len(s.allGroups),
		MonitoredGroups: len(s.monitoredGroups),
	}
}

// loadList returns nil when the file cannot be read, which Reload treats
// as "keep what we had".
func (s *ListStore) loadList(path, description string) []int64 {
	ids, err := ReadIDList(path, s.logger)
	if err != nil {
		s.logger.WithError(err).WithField("file", path).
			Errorf("could not load %s list", description)
		return nil
	}
	s.logger.WithFields(logrus.Fields{
		"file":  path,
		"count": len(ids),
	}).Infof("loaded %s list", description)
	if ids == nil {
		// Readable but empty file still replaces the snapshot.
		ids = []int64{}
	}
	return ids
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// IsAllowedUser reports whether the user may run privileged commands.
func (s *ListStore) IsAllowedUser(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.allowedUsers[id]
	return ok
}

// IsMonitoredGroup reports whether the chat is watched for unanswered
// customer messages.
func (s *ListStore) IsMonitoredGroup(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.monitoredGroups[id]
	return ok
}

// AllowedUserIDs returns a copy of the admin user IDs.
func (s *ListStore) AllowedUserIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.allowedUsers))
	for id := range s.allowedUsers {
		ids = append(ids, id)
	}
	return ids
}

// LargeGroupIDs returns a copy of the large-size broadcast targets.
func (s *ListStore) LargeGroupIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, len(s.largeGroups))
	copy(out, s.largeGroups)
	return out
}

// AllGroupIDs returns a copy of the all-size broadcast targets.
func (s *ListStore) AllGroupIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, len(s.allGroups))
	copy(out, s.allGroups)
	return out
}

// Counts returns the current list sizes.
func (s *ListStore) Counts() ListCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ListCounts{
		AllowedUsers:    len(s.allowedUsers),
		LargeGroups:     len(s.largeGroups),
		AllGroups:       len(s.allGroups),
		MonitoredGroups: len(s.monitoredGroups),
	}
}
