package stats

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	periodicNamespace = "late_stats"
	userNamespace     = "user_stats"
	keySeparator      = ":"
)

// Key identifies one cached statistics payload. Keys are only built through
// PeriodicKey and UserKey; each component is escaped so that no two distinct
// query shapes encode to the same string.
type Key struct {
	namespace string
	parts     []string
}

// PeriodicKey is the key of a periodic aggregate over a resolved window.
// Relative windows therefore roll over to a fresh key at midnight, week
// start and month start.
func PeriodicKey(period Period, w Window) Key {
	return Key{namespace: periodicNamespace, parts: []string{
		url.QueryEscape(string(period)),
		url.QueryEscape(w.StartLabel),
		url.QueryEscape(w.EndLabel),
	}}
}

// UserKey is the key of a per-user aggregate.
func UserKey(userID int64, limit int) Key {
	return Key{namespace: userNamespace, parts: []string{
		strconv.FormatInt(userID, 10),
		strconv.Itoa(limit),
	}}
}

func (k Key) String() string {
	return k.namespace + keySeparator + strings.Join(k.parts, keySeparator)
}

// PeriodicPrefix matches every periodic aggregate key.
func PeriodicPrefix() string {
	return periodicNamespace + keySeparator
}

// UserPrefix matches every per-user key of userID and nothing else.
func UserPrefix(userID int64) string {
	return userNamespace + keySeparator + strconv.FormatInt(userID, 10) + keySeparator
}
