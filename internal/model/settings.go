package model

import "time"

// Known application setting keys.
const (
	SettingShowEarnings = "show_earnings"
)

// AppSetting is a key/value runtime setting.
type AppSetting struct {
	Key         string    `json:"setting_key"`
	Value       string    `json:"setting_value"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
