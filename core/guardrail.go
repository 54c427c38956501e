package core

// Guard-rail attribute names as they appear in requests, tool descriptors and
// audit turns.
const (
	AttrOrgID          = "org_id"
	AttrRoleID         = "role_id"
	AttrUserID         = "user_id"
	AttrConversationID = "conversation_id"
	AttrDeviceID       = "device_id"
)

// GuardRailContext is the immutable identity/tenancy bundle that must
// accompany every agent and tool invocation. It is constructed once per
// request via Derive and threaded explicitly through every call boundary;
// nothing in the framework reads identity from ambient state.
//
// DeviceID is an optional focus attribute (a selected device narrowing graph
// queries); the four identity fields are mandatory.
type GuardRailContext struct {
	OrgID          string `json:"org_id"`
	RoleID         string `json:"role_id"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	DeviceID       string `json:"device_id,omitempty"`
}

// Derive resolves a GuardRailContext from request-level attributes. It fails
// with a MissingAttribute error naming the first absent mandatory field.
// Callers (HTTP layer, CLI, tests) are expected to populate attrs from the
// authenticated session; Derive never consults globals.
func Derive(attrs map[string]string) (GuardRailContext, error) {
	for _, name := range []string{AttrOrgID, AttrRoleID, AttrUserID, AttrConversationID} {
		if attrs[name] == "" {
			return GuardRailContext{}, NewError(KindMissingAttribute, "guard-rail attribute %q missing from request", name)
		}
	}
	return GuardRailContext{
		OrgID:          attrs[AttrOrgID],
		RoleID:         attrs[AttrRoleID],
		UserID:         attrs[AttrUserID],
		ConversationID: attrs[AttrConversationID],
		DeviceID:       attrs[AttrDeviceID],
	}, nil
}

// Validate reports whether all mandatory attributes are populated. Dispatch
// boundaries (orchestrator, tool registry) call this before executing any
// agent or tool; an incomplete context there is a caller bug surfaced as a
// GuardRailViolation rather than silently proceeding.
func (g GuardRailContext) Validate() error {
	for _, f := range []struct{ name, value string }{
		{AttrOrgID, g.OrgID},
		{AttrRoleID, g.RoleID},
		{AttrUserID, g.UserID},
		{AttrConversationID, g.ConversationID},
	} {
		if f.value == "" {
			return NewError(KindGuardRailViolation, "guard-rail context incomplete: %s is empty", f.name)
		}
	}
	return nil
}

// Attribute returns the value of a named guard-rail attribute ("" if unknown).
func (g GuardRailContext) Attribute(name string) string {
	switch name {
	case AttrOrgID:
		return g.OrgID
	case AttrRoleID:
		return g.RoleID
	case AttrUserID:
		return g.UserID
	case AttrConversationID:
		return g.ConversationID
	case AttrDeviceID:
		return g.DeviceID
	default:
		return ""
	}
}

// Require checks that each named attribute is populated, returning a
// GuardRailViolation for the first one that is not. Tool descriptors use this
// to declare per-tool guard-rail requirements beyond the mandatory four.
func (g GuardRailContext) Require(names ...string) error {
	for _, name := range names {
		if g.Attribute(name) == "" {
			return NewError(KindGuardRailViolation, "required guard-rail attribute %q not satisfied", name)
		}
	}
	return nil
}
