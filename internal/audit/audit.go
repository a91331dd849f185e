// Package audit appends AuditLog rows. Recording is best-effort: a failed
// insert is logged and never surfaces to the caller.
package audit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/dnothi/dnothi/internal/model"
	"gorm.io/gorm"
)

// Entry describes one audited action.
type Entry struct {
	Action       string
	ResourceType string
	ResourceID   string
	Description  string
}

// Recorder writes audit entries.
type Recorder struct {
	db      *gorm.DB
	log     *slog.Logger
	trusted []netip.Prefix
}

// New creates a Recorder. X-Forwarded-For is only read when the request
// arrives from one of trustedProxies.
func New(db *gorm.DB, log *slog.Logger, trustedProxies ...netip.Prefix) *Recorder {
	return &Recorder{db: db, log: log, trusted: trustedProxies}
}

// Record inserts exactly one AuditLog row for e, attributed to actor and
// stamped with the client address and user agent of r.
func (rec *Recorder) Record(r *http.Request, actor *model.User, e Entry) {
	row := &model.AuditLog{
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Description:  e.Description,
		IP:           ClientIP(r, rec.trusted),
		UserAgent:    r.UserAgent(),
	}
	if actor != nil {
		row.UserID = actor.ID
		row.UserName = actor.FullName
		if row.UserName == "" {
			row.UserName = actor.Username
		}
		row.Office = actor.Office
	}
	rec.write(r.Context(), row)
}

func (rec *Recorder) write(ctx context.Context, row *model.AuditLog) {
	if err := rec.db.WithContext(ctx).Create(row).Error; err != nil {
		rec.log.WarnContext(ctx, "audit: write failed",
			"action", row.Action,
			"resource_type", row.ResourceType,
			"resource_id", row.ResourceID,
			"err", err,
		)
	}
}

// ClientIP returns the address of the client that made r. The peer address
// is used unless it belongs to a trusted proxy, in which case
// X-Forwarded-For is walked from the right and the first untrusted hop wins.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	if !isTrusted(peer, trusted) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		client = hop
		if !isTrusted(hop, trusted) {
			break
		}
	}
	return client
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
