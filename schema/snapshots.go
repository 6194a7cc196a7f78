package schema

// TabSnapshot is a read-only view of tab state for renderers.
type TabSnapshot struct {
	ID        TabID
	Title     string
	ProfileID ProfileID
	SessionID SessionID
	State     LifecycleState
	Active    bool
}

// TabsSnapshot is the persisted list of open tabs, used to restore a
// workspace on the next start.
type TabsSnapshot struct {
	Profiles  []ProfileID `json:"profiles"`
	ActiveIdx int         `json:"active_index"`
}
