package model

import "github.com/inmobium/crm-messaging/pkg/pg"

// Recognized setting keys. Boolean values are the strings "true"/"false";
// a missing key reads as false.
const (
	SettingVerifyToken              = "meta_w_verify_token"
	SettingBusinessAccountID        = "meta_w_business_account_id"
	SettingAutoCreateChannel        = "meta_w_auto_create_channel"
	SettingAutoCreateContact        = "meta_w_auto_create_contact"
	SettingFallbackTemplateName     = "meta_w_fallback_template_name"
	SettingFallbackTemplateLanguage = "meta_w_fallback_template_language"
)

type Setting struct {
	pg.Model
	Key   string `json:"key"   gorm:"column:key;not null;uniqueIndex"`
	Value string `json:"value" gorm:"column:value;not null"`
}

func (Setting) TableName() string { return "settings" }
