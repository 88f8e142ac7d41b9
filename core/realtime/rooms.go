package realtime

import "strings"

type RoomKind string

const (
	RoomTenant   RoomKind = "tenant"
	RoomIncident RoomKind = "incident"
)

func TenantRoom(tenantID string) string {
	return string(RoomTenant) + ":" + tenantID
}

func IncidentRoom(incidentID string) string {
	return string(RoomIncident) + ":" + incidentID
}

// ParseRoom splits "kind:id". Unknown kinds and empty ids are rejected.
func ParseRoom(room string) (RoomKind, string, bool) {
	kind, id, found := strings.Cut(strings.TrimSpace(room), ":")
	if !found || strings.TrimSpace(id) == "" {
		return "", "", false
	}
	switch RoomKind(kind) {
	case RoomTenant, RoomIncident:
		return RoomKind(kind), id, true
	default:
		return "", "", false
	}
}
