package main

// AllowList holds the set of user IDs permitted to use the bot. The first
// configured ID is the administrator. Built once at startup; immutable.
type AllowList struct {
	ids   map[int64]struct{}
	admin int64
	empty bool
}

func NewAllowList(ids []int64) *AllowList {
	a := &AllowList{ids: make(map[int64]struct{}, len(ids)), empty: len(ids) == 0}
	for _, id := range ids {
		a.ids[id] = struct{}{}
	}
	if !a.empty {
		a.admin = ids[0]
	}
	return a
}

// IsAuthorized reports whether the user may invoke any command. An empty
// allow-list authorizes no one.
func (a *AllowList) IsAuthorized(userID int64) bool {
	_, ok := a.ids[userID]
	return ok
}

// IsAdministrator reports whether the user is the configured administrator.
// With an empty allow-list there is no administrator and this returns false;
// callers answer with msgAdminNotConfigured instead of failing.
func (a *AllowList) IsAdministrator(userID int64) bool {
	return !a.empty && userID == a.admin
}

// AdminID returns the administrator user ID and whether one is configured.
func (a *AllowList) AdminID() (int64, bool) {
	if a.empty {
		return 0, false
	}
	return a.admin, true
}
