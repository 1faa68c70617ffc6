package models

import (
	"gorm.io/gorm"
)

// PortalSetting is one key/value configuration row belonging to a portal.
// It is the entity behind the reference settings porter; the remaining
// category payloads live with their own exporters.
type PortalSetting struct {
	gorm.Model
	PortalID uint   `json:"portal_id" gorm:"not null;uniqueIndex:idx_setting_portal_name"`
	Name     string `json:"name" gorm:"not null;uniqueIndex:idx_setting_portal_name"`
	Value    string `json:"value" gorm:"type:text"`
}
