package policy

import (
	"github.com/dnothi/dnothi/internal/model"
	"gorm.io/gorm"
)

// Scope returns a GORM scope restricting a list query on resourceType to the
// rows u may see. Unknown resource types match nothing.
func Scope(u *model.User, resourceType string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if u == nil {
			return db.Where("1 = 0")
		}
		sysAdmin := isSystemAdmin(u)
		// A manager without an office manages nobody, matching sameOffice
		// in the item rules.
		manager := isOfficeManager(u) && u.Office != ""

		switch resourceType {
		case Task:
			switch {
			case sysAdmin:
				return db
			case manager:
				return db.Where("office = ?", u.Office)
			default:
				return db.Where("user_id = ?", u.ID)
			}
		case Leave:
			switch {
			case sysAdmin:
				return db
			case manager:
				return db.Where("office = ?", u.Office)
			default:
				return db.Where("user_id = ? OR requested_by_id = ?", u.ID, u.ID)
			}
		case Meeting:
			participating := db.Session(&gorm.Session{NewDB: true}).
				Table("meeting_users").Select("meeting_id").Where("user_id = ?", u.ID)
			switch {
			case sysAdmin:
				return db
			case manager:
				return db.Where("office = ? OR created_by_id = ? OR id IN (?)", u.Office, u.ID, participating)
			default:
				return db.Where("created_by_id = ? OR id IN (?)", u.ID, participating)
			}
		case Collaboration:
			switch {
			case sysAdmin:
				return db
			case u.Office != "":
				return db.Where("office = ? OR created_by_id = ?", u.Office, u.ID)
			default:
				return db.Where("created_by_id = ?", u.ID)
			}
		case User:
			switch {
			case sysAdmin:
				return db
			case manager:
				return db.Where("office = ?", u.Office)
			default:
				return db.Where("id = ?", u.ID)
			}
		case Audit:
			switch {
			case sysAdmin:
				return db
			case u.Role == model.RoleAdmin && u.Office != "":
				return db.Where("office = ?", u.Office)
			default:
				return db.Where("1 = 0")
			}
		case File:
			switch {
			case sysAdmin:
				return db
			case manager:
				return db.Where("office = ? OR user_id = ?", u.Office, u.ID)
			default:
				return db.Where("user_id = ?", u.ID)
			}
		case Notification:
			return db.Where(
				"user_id = ? OR (user_id IS NULL AND (recipient_role IS NULL OR recipient_role = ?) AND (recipient_office IS NULL OR recipient_office = ?))",
				u.ID, u.Role, u.Office,
			)
		case Dropdown:
			return db
		default:
			return db.Where("1 = 0")
		}
	}
}
