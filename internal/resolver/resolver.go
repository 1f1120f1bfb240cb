// Package resolver turns recipient-type tokens plus event context into
// concrete, contactable recipients. Strategy failures are recovered locally:
// a strategy that cannot resolve yields zero recipients (or a documented
// fallback) and resolution continues with the remaining tokens.
package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/apporte/notify/internal/identity"
	"github.com/apporte/notify/internal/logging"
	"github.com/apporte/notify/internal/metrics"
	"github.com/apporte/notify/internal/notification"
	"github.com/apporte/notify/internal/store"
)

// UserStore is the local user cache. Find methods return (nil, nil) when the
// user is absent.
type UserStore interface {
	FindUser(ctx context.Context, id string) (*store.User, error)
	FindUserByEmail(ctx context.Context, email string) (*store.User, error)
	FindAdmins(ctx context.Context) ([]store.User, error)
	SaveUser(ctx context.Context, u *store.User) error
}

// ProjectStore looks up project ownership. FindOwner returns (nil, nil) when
// the project is absent.
type ProjectStore interface {
	FindOwner(ctx context.Context, entityID string) (*store.Owner, error)
}

// IdentityProvider fetches authoritative user profiles. GetUser returns
// (nil, nil) when the provider does not know the user.
type IdentityProvider interface {
	GetUser(ctx context.Context, id string) (*identity.Profile, error)
}

// Options tune cache behavior and the admin fallback identity.
type Options struct {
	UserCacheTTL       time.Duration // staleness threshold before an identity refresh
	ResolutionCacheTTL time.Duration // per-request result cache
	FallbackAdminID    string
	FallbackAdminEmail string
	FallbackAdminName  string
}

type cacheEntry struct {
	recipients []notification.Recipient
	expires    time.Time
}

// Resolver dispatches recipient-type tokens to resolution strategies.
type Resolver struct {
	users    UserStore
	projects ProjectStore
	idp      IdentityProvider
	opts     Options
	log      *logging.Logger

	cache sync.Map // request key -> cacheEntry
	sf    singleflight.Group

	now func() time.Time
}

// New builds a resolver.
func New(users UserStore, projects ProjectStore, idp IdentityProvider, opts Options) *Resolver {
	if opts.UserCacheTTL == 0 {
		opts.UserCacheTTL = time.Hour
	}
	return &Resolver{
		users:    users,
		projects: projects,
		idp:      idp,
		opts:     opts,
		log:      logging.New("notify-resolver"),
		now:      time.Now,
	}
}

// Resolve produces the concatenated recipients of every strategy named in
// the request. Unknown tokens are logged and skipped. The whole result may
// be served from a short-lived cache keyed by request identity to avoid
// repeat lookups under fan-out.
func (r *Resolver) Resolve(ctx context.Context, req *notification.Request) ([]notification.Recipient, error) {
	key := requestKey(req)
	if key == "" {
		// Unkeyable context, resolve without caching.
		return r.resolveAll(ctx, req), nil
	}

	if r.opts.ResolutionCacheTTL > 0 {
		if v, ok := r.cache.Load(key); ok {
			entry := v.(cacheEntry)
			if r.now().Before(entry.expires) {
				return entry.recipients, nil
			}
			r.cache.Delete(key)
		}
	}

	v, err, _ := r.sf.Do(key, func() (any, error) {
		recipients := r.resolveAll(ctx, req)
		if r.opts.ResolutionCacheTTL > 0 {
			r.cache.Store(key, cacheEntry{recipients: recipients, expires: r.now().Add(r.opts.ResolutionCacheTTL)})
		}
		return recipients, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]notification.Recipient), nil
}

func (r *Resolver) resolveAll(ctx context.Context, req *notification.Request) []notification.Recipient {
	var recipients []notification.Recipient

	for _, token := range req.RecipientTypes {
		var got []notification.Recipient
		switch token {
		case notification.RecipientProjectOwner:
			got = r.resolveProjectOwner(ctx, req.EntityID)
		case notification.RecipientAdmins:
			got = r.resolveAdmins(ctx)
		case notification.RecipientWorkflowParticipants:
			got = r.resolveWorkflowParticipants(ctx, req)
		case notification.RecipientSpecificUsers:
			got = r.resolveSpecificUsers(ctx, req)
		case notification.RecipientManual:
			got = r.resolveManual(ctx, req)
		default:
			r.log.WithContext(ctx).WithField("recipient_type", token).Warn("unknown recipient type, skipping")
			continue
		}
		metrics.RecordResolved(token, len(got))
		recipients = append(recipients, got...)
	}

	r.log.WithContext(ctx).WithEventType(req.EventType).
		WithField("count", len(recipients)).Info("recipients resolved")
	return recipients
}

// resolveProjectOwner emits the owner of the entity's project, or nothing
// when the project is unknown.
func (r *Resolver) resolveProjectOwner(ctx context.Context, entityID string) []notification.Recipient {
	owner, err := r.projects.FindOwner(ctx, entityID)
	if err != nil {
		r.log.WithContext(ctx).WithError(err).WithField("entity_id", entityID).Error("project owner lookup failed")
		return nil
	}
	if owner == nil {
		r.log.WithContext(ctx).WithField("entity_id", entityID).Warn("project not found")
		return nil
	}

	user := r.getOrRefreshUser(ctx, owner.UserID, owner.Email, owner.Name)
	return []notification.Recipient{{
		UserID:        owner.UserID,
		Email:         user.Email,
		Name:          user.Name,
		Phone:         user.Phone,
		RecipientType: notification.RecipientProjectOwner,
		Metadata:      map[string]any{"project_id": entityID},
	}}
}

// resolveAdmins emits every user holding the admin role. When the lookup
// fails it falls back to the well-known fallback administrator instead of
// failing resolution. Resilience policy, not a correctness guarantee.
func (r *Resolver) resolveAdmins(ctx context.Context) []notification.Recipient {
	admins, err := r.users.FindAdmins(ctx)
	if err != nil {
		r.log.WithContext(ctx).WithError(err).Warn("admin lookup failed, using fallback admin")
		return []notification.Recipient{r.fallbackAdmin(ctx)}
	}

	out := make([]notification.Recipient, 0, len(admins))
	for _, u := range admins {
		out = append(out, notification.Recipient{
			UserID:        u.ID,
			Email:         u.Email,
			Name:          u.Name,
			Phone:         u.Phone,
			RecipientType: "admin",
			Metadata:      map[string]any{"role": "admin"},
		})
	}
	return out
}

func (r *Resolver) fallbackAdmin(ctx context.Context) notification.Recipient {
	user := r.getOrRefreshUser(ctx, r.opts.FallbackAdminID, r.opts.FallbackAdminEmail, r.opts.FallbackAdminName)
	return notification.Recipient{
		UserID:        r.opts.FallbackAdminID,
		Email:         user.Email,
		Name:          user.Name,
		Phone:         user.Phone,
		RecipientType: "admin",
		Metadata:      map[string]any{"role": "admin", "source": "fallback"},
	}
}

// resolveWorkflowParticipants reads participant_ids from the request context
// and resolves each against the user cache, dropping unresolvable ids.
func (r *Resolver) resolveWorkflowParticipants(ctx context.Context, req *notification.Request) []notification.Recipient {
	ids := req.ContextStrings("participant_ids")
	if len(ids) == 0 {
		return nil
	}

	var out []notification.Recipient
	for _, id := range ids {
		u, err := r.users.FindUser(ctx, id)
		if err != nil {
			r.log.WithContext(ctx).WithError(err).WithUser(id).Error("participant lookup failed")
			continue
		}
		if u == nil {
			continue
		}
		out = append(out, notification.Recipient{
			UserID:        u.ID,
			Email:         u.Email,
			Name:          u.Name,
			Phone:         u.Phone,
			RecipientType: "workflow_participant",
			Metadata:      map[string]any{"context": "workflow", "source": "context"},
		})
	}
	return out
}

// resolveSpecificUsers reads user_emails from the request context and
// resolves each against the user cache by email, dropping unresolvable ones.
func (r *Resolver) resolveSpecificUsers(ctx context.Context, req *notification.Request) []notification.Recipient {
	emails := req.ContextStrings("user_emails")
	if len(emails) == 0 {
		return nil
	}

	var out []notification.Recipient
	for _, email := range emails {
		u, err := r.users.FindUserByEmail(ctx, email)
		if err != nil {
			r.log.WithContext(ctx).WithError(err).WithField("email", email).Error("specific user lookup failed")
			continue
		}
		if u == nil {
			continue
		}
		out = append(out, notification.Recipient{
			UserID:        u.ID,
			Email:         u.Email,
			Name:          u.Name,
			Phone:         u.Phone,
			RecipientType: "specific_user",
			Metadata:      map[string]any{"source": "database", "email_provided": email},
		})
	}
	return out
}

// resolveManual treats the entity id as a user id. It tries the user cache,
// then an inline recipient object from the context, then synthesizes a
// placeholder. This path degrades but never fails.
func (r *Resolver) resolveManual(ctx context.Context, req *notification.Request) []notification.Recipient {
	entityID := req.EntityID

	u, err := r.users.FindUser(ctx, entityID)
	if err != nil {
		r.log.WithContext(ctx).WithError(err).WithUser(entityID).Error("manual recipient lookup failed")
	}
	if u != nil {
		return []notification.Recipient{{
			UserID:        u.ID,
			Email:         u.Email,
			Name:          u.Name,
			Phone:         u.Phone,
			RecipientType: notification.RecipientManual,
			Metadata:      map[string]any{"source": "database", "entity_id": entityID},
		}}
	}

	if data := req.ContextMap("recipient"); data != nil {
		rcpt := notification.Recipient{
			UserID:        stringOr(data, "userId", entityID),
			Email:         stringOr(data, "email", entityID+"@example.com"),
			Name:          stringOr(data, "name", "User "+entityID),
			RecipientType: notification.RecipientManual,
			Metadata:      map[string]any{"source": "context", "entity_id": entityID},
		}
		if phone, ok := data["phone"].(string); ok {
			rcpt.Phone = phone
		}
		return []notification.Recipient{rcpt}
	}

	r.log.WithContext(ctx).WithUser(entityID).Warn("using fallback manual recipient")
	return []notification.Recipient{{
		UserID:        entityID,
		Email:         entityID + "@example.com",
		Name:          "User " + entityID,
		RecipientType: notification.RecipientManual,
		Metadata:      map[string]any{"source": "fallback", "entity_id": entityID},
	}}
}

// getOrRefreshUser returns the cached user, creating the cache entry from
// the identity provider on first sight and refreshing it when stale. The
// fallback email and name fill in when the provider cannot answer.
func (r *Resolver) getOrRefreshUser(ctx context.Context, userID, fallbackEmail, fallbackName string) *store.User {
	u, err := r.users.FindUser(ctx, userID)
	if err != nil {
		r.log.WithContext(ctx).WithError(err).WithUser(userID).Error("user cache lookup failed")
		u = nil
	}

	if u != nil && !u.Stale(r.now(), r.opts.UserCacheTTL) {
		return u
	}

	fresh := r.fetchProfile(ctx, userID, fallbackEmail, fallbackName)
	if u == nil {
		u = &store.User{ID: userID, CreatedAt: r.now().UTC()}
	}
	u.Email = fresh.Email
	u.Name = fresh.Name
	u.Phone = fresh.Phone
	if len(fresh.Roles) > 0 {
		u.Roles = fresh.Roles
	}
	u.LastSync = r.now().UTC()

	if err := r.users.SaveUser(ctx, u); err != nil {
		r.log.WithContext(ctx).WithError(err).WithUser(userID).Error("user cache save failed")
	}
	return u
}

type profileData struct {
	Email string
	Name  string
	Phone string
	Roles []string
}

func (r *Resolver) fetchProfile(ctx context.Context, userID, fallbackEmail, fallbackName string) profileData {
	p, err := r.idp.GetUser(ctx, userID)
	if err != nil || p == nil {
		if err != nil {
			r.log.WithContext(ctx).WithError(err).WithUser(userID).Warn("identity provider lookup failed, using fallback data")
		}
		return profileData{Email: fallbackEmail, Name: fallbackName}
	}

	data := profileData{Email: p.Email, Name: p.FullName(), Phone: p.Phone, Roles: p.Roles}
	if data.Email == "" {
		data.Email = fallbackEmail
	}
	if data.Name == "" {
		data.Name = fallbackName
	}
	return data
}

func stringOr(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

// requestKey identifies a request for the resolution cache and the
// single-flight group. The key covers the full request including the
// context: workflow_participants, specific_users and manual all read their
// recipients out of the context, so it is part of request identity.
func requestKey(req *notification.Request) string {
	b, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
