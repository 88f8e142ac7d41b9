// Package incidents owns every mutation of incident state: creation, updates through the
// state machine, comments and the activity trail that records them.
package incidents

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jellydator/ttlcache/v3"

	"tenantdesk/config"
	"tenantdesk/core/apperr"
	"tenantdesk/core/auth"
	"tenantdesk/core/document"
	"tenantdesk/core/rbac"
	"tenantdesk/core/realtime"
	"tenantdesk/core/store"
	"tenantdesk/core/tenancy"
	"tenantdesk/core/utils"
)

const (
	EventCreated   = "incident:created"
	EventUpdated   = "incident:updated"
	EventCommented = "incident:commented"
)

// Publisher is the broadcast side of the realtime router.
type Publisher interface {
	Broadcast(room, event string, payload any) error
	BroadcastWhere(room, event string, payload any, keep realtime.Predicate) error
}

type ServiceDeps struct {
	Incidents store.IncidentsStore
	Types     store.IncidentTypesStore
	Tenants   store.TenantsStore
	Users     store.UsersStore
	Scope     *tenancy.Scope
	Publisher Publisher
	Logger    *utils.Logger
}

type Service struct {
	incidents store.IncidentsStore
	types     store.IncidentTypesStore
	tenants   store.TenantsStore
	users     store.UsersStore
	scope     *tenancy.Scope
	machine   *StateMachine
	comments  *CommentFilter
	publisher Publisher
	logger    *utils.Logger
	validate  *validator.Validate
	typeCache *ttlcache.Cache[string, store.IncidentType]
	hashCost  int
	now       func() time.Time
}

func NewService(cfg *config.AppConfig, deps ServiceDeps) *Service {
	ttl := 5 * time.Minute
	if cfg != nil && cfg.Incidents.TypeCacheTTL > 0 {
		ttl = cfg.Incidents.TypeCacheTTL
	}
	cost := 0
	if cfg != nil {
		cost = cfg.Auth.BcryptCost
	}
	return &Service{
		incidents: deps.Incidents,
		types:     deps.Types,
		tenants:   deps.Tenants,
		users:     deps.Users,
		scope:     deps.Scope,
		machine:   NewStateMachine(deps.Scope),
		comments:  NewCommentFilter(deps.Scope),
		publisher: deps.Publisher,
		logger:    deps.Logger,
		validate:  newValidator(),
		typeCache: ttlcache.New(
			ttlcache.WithTTL[string, store.IncidentType](ttl),
			ttlcache.WithDisableTouchOnHit[string, store.IncidentType](),
		),
		hashCost: cost,
		now:      utils.NowUTC,
	}
}

func (s *Service) Scope() *tenancy.Scope { return s.scope }

func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*IncidentView, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := checkInput(s.validate, "incidents", in); err != nil {
		return nil, err
	}
	if err := s.scope.Require(actor, rbac.PermIncidentsCreate); err != nil {
		return nil, err
	}
	if err := s.scope.Authorize(actor, in.TenantID); err != nil {
		return nil, err
	}
	tenant, err := s.tenants.Get(ctx, in.TenantID)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	if tenant == nil || !tenant.IsActive {
		return nil, apperr.Validation("incidents.invalid_tenant", "tenant does not exist or is inactive")
	}
	itype, err := s.incidentType(ctx, in.IncidentTypeID)
	if err != nil {
		return nil, err
	}
	if itype == nil || itype.TenantID != in.TenantID || !itype.IsActive {
		return nil, apperr.Validation("incidents.invalid_incident_type", "incident type does not belong to this tenant")
	}
	data := in.Data
	if data == nil {
		data = document.New()
	}
	if err := ValidateData(itype.Fields, data); err != nil {
		return nil, err
	}
	priority := DefaultPriority
	if in.Priority != nil {
		priority = *in.Priority
	}

	now := s.now()
	inc := store.Incident{
		ID:             store.NewID(),
		TenantID:       in.TenantID,
		IncidentTypeID: in.IncidentTypeID,
		Title:          in.Title,
		Description:    in.Description,
		Status:         StatusOpen,
		Priority:       priority,
		ReportedBy:     actor.ID,
		Data:           data.Clone(),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	entries := []store.ActivityLog{createdEntry(actor, inc, now)}
	if err := s.incidents.CreateIncident(ctx, &inc, entries); err != nil {
		return nil, apperr.Unavailable(err)
	}
	s.logger.Printf("incident %s created in tenant %s by %s", inc.ID, inc.TenantID, actor.ID)
	s.publish(realtime.TenantRoom(inc.TenantID), EventCreated, incidentPayload(inc))

	views, err := s.expand(ctx, []store.Incident{inc})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id string) (*IncidentDetail, error) {
	inc, err := s.load(ctx, actor, id, rbac.PermIncidentsRead)
	if err != nil {
		return nil, err
	}
	views, err := s.expand(ctx, []store.Incident{*inc})
	if err != nil {
		return nil, err
	}
	activity, err := s.activityViews(ctx, inc.ID)
	if err != nil {
		return nil, err
	}
	comments, err := s.commentViews(ctx, actor, inc.ID)
	if err != nil {
		return nil, err
	}
	return &IncidentDetail{IncidentView: views[0], Activity: activity, Comments: comments}, nil
}

func (s *Service) List(ctx context.Context, actor auth.Actor, filter ListFilter) ([]IncidentView, error) {
	status := strings.TrimSpace(filter.Status)
	if status != "" && !ValidStatus(status) {
		return nil, apperr.Validation("incidents.invalid_status", "unknown status "+status)
	}
	if err := s.scope.Require(actor, rbac.PermIncidentsRead); err != nil {
		return nil, err
	}
	tenantID := s.scope.ListTenant(actor, filter.TenantID)
	if tenantID == "" && !s.scope.Allowed(actor, rbac.PermTenantsCross) {
		return nil, apperr.AccessDenied(tenancy.CodeAccessDenied)
	}
	items, err := s.incidents.ListIncidents(ctx, store.IncidentFilter{TenantID: tenantID, Status: status})
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	visible := s.scope.ScopeFilter(actor)
	scoped := items[:0]
	for _, inc := range items {
		if visible(inc.TenantID) {
			scoped = append(scoped, inc)
		}
	}
	return s.expand(ctx, scoped)
}

// Update applies patch through the state machine and persists the result with its activity
// entries. A patch that changes nothing writes and broadcasts nothing.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id string, patch Patch) (*IncidentView, error) {
	current, err := s.load(ctx, actor, id, rbac.PermIncidentsUpdate)
	if err != nil {
		return nil, err
	}
	uc := UpdateContext{Actor: actor, Now: s.now()}
	if patch.AssignedTo != nil && s.scope.Allowed(actor, rbac.PermIncidentsAssign) {
		ids := []string{strings.TrimSpace(*patch.AssignedTo)}
		if current.AssignedTo != nil {
			ids = append(ids, *current.AssignedTo)
		}
		people, err := s.users.GetMany(ctx, ids)
		if err != nil {
			return nil, apperr.Unavailable(err)
		}
		uc.Names = map[string]string{}
		for id, u := range people {
			uc.Names[id] = u.Name
		}
		if err := s.checkAssignee(people, strings.TrimSpace(*patch.AssignedTo), current.TenantID); err != nil {
			return nil, err
		}
	}
	if patch.Data != nil {
		itype, err := s.incidentType(ctx, current.IncidentTypeID)
		if err != nil {
			return nil, err
		}
		if itype == nil {
			return nil, apperr.Validation("incidents.invalid_incident_type", "incident type no longer exists")
		}
		if err := ValidateData(itype.Fields, patch.Data); err != nil {
			return nil, err
		}
	}

	next, entries, err := s.machine.ApplyUpdate(*current, patch, uc)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		if err := s.incidents.UpdateIncident(ctx, &next, current.Version, entries); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return nil, apperr.Conflict("incidents.version_conflict", "incident was changed concurrently, reload and retry")
			}
			return nil, apperr.Unavailable(err)
		}
		s.logger.Printf("incident %s updated by %s: %d changes", next.ID, actor.ID, len(entries))
		payload := incidentPayload(next)
		s.publish(realtime.TenantRoom(next.TenantID), EventUpdated, payload)
		s.publish(realtime.IncidentRoom(next.ID), EventUpdated, payload)
	}
	views, err := s.expand(ctx, []store.Incident{next})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *Service) Activity(ctx context.Context, actor auth.Actor, incidentID string) ([]ActivityView, error) {
	inc, err := s.load(ctx, actor, incidentID, rbac.PermActivityRead)
	if err != nil {
		return nil, err
	}
	return s.activityViews(ctx, inc.ID)
}

// AuthorizeRoom decides whether actor may subscribe to room. Incident rooms follow the
// incident's tenant.
func (s *Service) AuthorizeRoom(ctx context.Context, actor auth.Actor, room string) error {
	kind, id, ok := realtime.ParseRoom(room)
	if !ok {
		return apperr.Validation("realtime.invalid_room", "unknown room "+room)
	}
	switch kind {
	case realtime.RoomTenant:
		return s.scope.Authorize(actor, id)
	default:
		_, err := s.load(ctx, actor, id, rbac.PermIncidentsRead)
		return err
	}
}

func (s *Service) InvalidateType(id string) {
	s.typeCache.Delete(id)
}

// load fetches an incident and checks perm plus tenant scope.
func (s *Service) load(ctx context.Context, actor auth.Actor, id string, perm rbac.Permission) (*store.Incident, error) {
	if err := s.scope.Require(actor, perm); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if !store.ValidID(id) {
		return nil, apperr.NotFound("incidents.not_found", "incident not found")
	}
	inc, err := s.incidents.GetIncident(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	if inc == nil {
		return nil, apperr.NotFound("incidents.not_found", "incident not found")
	}
	if err := s.scope.Authorize(actor, inc.TenantID); err != nil {
		return nil, err
	}
	return inc, nil
}

func (s *Service) checkAssignee(people map[string]store.User, id, tenantID string) error {
	if !store.ValidID(id) {
		return nil
	}
	u, ok := people[id]
	if !ok {
		return apperr.Validation("incidents.invalid_assignee", "assignee does not exist")
	}
	if !s.scope.CanAccess(auth.ActorFromUser(&u), tenantID) {
		return apperr.Validation("incidents.invalid_assignee", "assignee cannot access this tenant")
	}
	return nil
}

func (s *Service) incidentType(ctx context.Context, id string) (*store.IncidentType, error) {
	if item := s.typeCache.Get(id); item != nil {
		it := item.Value()
		return &it, nil
	}
	it, err := s.types.Get(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	if it != nil {
		s.typeCache.Set(id, *it, ttlcache.DefaultTTL)
	}
	return it, nil
}

func (s *Service) expand(ctx context.Context, items []store.Incident) ([]IncidentView, error) {
	views := make([]IncidentView, 0, len(items))
	tenants := map[string]*store.Tenant{}
	types := map[string]*store.IncidentType{}
	var userIDs []string
	for _, inc := range items {
		if _, ok := tenants[inc.TenantID]; !ok {
			t, err := s.tenants.Get(ctx, inc.TenantID)
			if err != nil {
				return nil, apperr.Unavailable(err)
			}
			tenants[inc.TenantID] = t
		}
		if _, ok := types[inc.IncidentTypeID]; !ok {
			it, err := s.incidentType(ctx, inc.IncidentTypeID)
			if err != nil {
				return nil, err
			}
			types[inc.IncidentTypeID] = it
		}
		userIDs = append(userIDs, inc.ReportedBy)
		if inc.AssignedTo != nil {
			userIDs = append(userIDs, *inc.AssignedTo)
		}
	}
	users, err := s.users.GetMany(ctx, userIDs)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	for _, inc := range items {
		reporter := inc.ReportedBy
		views = append(views, IncidentView{
			Incident:     inc,
			Tenant:       tenants[inc.TenantID],
			IncidentType: types[inc.IncidentTypeID],
			Assignee:     lookupSummary(users, inc.AssignedTo),
			Reporter:     lookupSummary(users, &reporter),
		})
	}
	return views, nil
}

func (s *Service) activityViews(ctx context.Context, incidentID string) ([]ActivityView, error) {
	entries, err := s.incidents.ListActivity(ctx, incidentID)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	out := make([]ActivityView, 0, len(entries))
	for _, e := range entries {
		uid := e.UserID
		out = append(out, ActivityView{ActivityLog: e, User: lookupSummary(users, &uid)})
	}
	return out, nil
}

// publish runs after commit. Failures are logged and never reach the caller.
func (s *Service) publish(room, event string, payload any) {
	s.publishWhere(room, event, payload, nil)
}

func (s *Service) publishWhere(room, event string, payload any, keep realtime.Predicate) {
	if s.publisher == nil {
		return
	}
	var err error
	if keep == nil {
		err = s.publisher.Broadcast(room, event, payload)
	} else {
		err = s.publisher.BroadcastWhere(room, event, payload, keep)
	}
	if err != nil {
		s.logger.Errorf("broadcast %s to %s: %v", event, room, err)
	}
}

func incidentPayload(inc store.Incident) map[string]string {
	return map[string]string{"id": inc.ID, "tenantId": inc.TenantID}
}
