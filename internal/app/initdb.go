package app

import (
	"errors"
	"strings"
	"time"

	"github.com/salonbook/salonbook/internal/domain"
	"github.com/salonbook/salonbook/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (a *Application) checkSuper() {
	const superUsername = "admin"
	const defaultPassword = "salonbook"

	hashedPassword := common.Sha256HashWithSalt(defaultPassword, common.GetSecretSalt())

	var operator domain.SysOpr
	err := a.gormDB.Where("username = ?", superUsername).First(&operator).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := a.gormDB.Create(&domain.SysOpr{
			ID:        common.UUIDint64(),
			Realname:  "administrator",
			Mobile:    "0000",
			Email:     "N/A",
			Username:  superUsername,
			Password:  hashedPassword,
			Level:     domain.LevelSuper,
			Status:    common.ENABLED,
			Remark:    "super",
			LastLogin: time.Now(),
		}).Error; err != nil {
			zap.L().Error("failed to create default super admin", zap.Error(err))
		} else {
			zap.L().Info("initialized default super admin account", zap.String("username", superUsername))
		}
		return
	case err != nil:
		zap.L().Error("failed to query super admin", zap.Error(err))
		return
	}

	resetPassword := strings.TrimSpace(operator.Password) == ""
	resetLevel := !strings.EqualFold(operator.Level, domain.LevelSuper)
	resetStatus := !strings.EqualFold(operator.Status, common.ENABLED)

	if !resetPassword && !resetLevel && !resetStatus {
		return
	}

	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if resetPassword {
		updates["password"] = hashedPassword
	}
	if resetLevel {
		updates["level"] = domain.LevelSuper
	}
	if resetStatus {
		updates["status"] = common.ENABLED
	}

	if err := a.gormDB.Model(&domain.SysOpr{}).Where("id = ?", operator.ID).Updates(updates).Error; err != nil {
		zap.L().Error("failed to repair super admin account", zap.Error(err))
		return
	}

	zap.L().Warn("repaired default super admin account",
		zap.String("username", superUsername),
		zap.Bool("passwordReset", resetPassword),
		zap.Bool("levelReset", resetLevel),
		zap.Bool("statusEnabled", resetStatus))
}

type settingSchema struct {
	Key         string
	Default     string
	Description string
}

var settingSchemas = []settingSchema{
	{"booking.PendingExpireMinutes", "60", "Minutes before an unconfirmed booking is cancelled"},
	{"booking.SweepEnabled", "true", "Whether the maintenance sweep runs on schedule"},
	{"booking.OprLogRetentionDays", "365", "Days to keep operator audit logs"},
	{"notify.EmailEnabled", "false", "Send booking emails via SMTP"},
	{"notify.WebhookURL", "", "POST booking events to this URL when set"},
	{"scheduler.MaxWorkers", "8", "Worker pool size for sweep passes"},
}

func (a *Application) checkSettings() {
	// Iterate over all configuration definitions, checking and initializing missing entries
	for sortid, schema := range settingSchemas {
		// Parse key: "category.name" -> category, name
		parts := strings.SplitN(schema.Key, ".", 2)
		if len(parts) != 2 {
			zap.L().Warn("invalid config key format", zap.String("key", schema.Key))
			continue
		}

		category := parts[0]
		name := parts[1]

		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", category, name).
			Count(&count)

		// e.g., if the configuration does not exist, create the default configuration
		if count == 0 {
			a.gormDB.Create(&domain.SysConfig{
				Sort:   sortid,
				Type:   category,
				Name:   name,
				Value:  schema.Default,
				Remark: schema.Description,
			})
			zap.L().Info("initialized config",
				zap.String("key", schema.Key),
				zap.String("default", schema.Default))
		}
	}
}

// checkCategories initializes the default catalog
func (a *Application) checkCategories() {
	defaultCategories := []struct {
		Name        string
		Description string
		Services    []domain.Service
	}{
		{
			Name:        "Hair",
			Description: "Cuts, styling and coloring",
			Services: []domain.Service{
				{Name: "Haircut", Description: "Classic haircut", Price: 25, Duration: 45},
				{Name: "Coloring", Description: "Full hair coloring", Price: 70, Duration: 120},
			},
		},
		{
			Name:        "Nails",
			Description: "Manicure and pedicure",
			Services: []domain.Service{
				{Name: "Manicure", Description: "Classic manicure", Price: 20, Duration: 60},
			},
		},
	}

	for _, c := range defaultCategories {
		var count int64
		a.gormDB.Model(&domain.Category{}).Where("name = ?", c.Name).Count(&count)
		if count > 0 {
			continue
		}
		category := domain.Category{ID: common.UUIDint64(), Name: c.Name, Description: c.Description}
		if err := a.gormDB.Create(&category).Error; err != nil {
			zap.L().Error("failed to create default category", zap.String("name", c.Name), zap.Error(err))
			continue
		}
		for _, s := range c.Services {
			s.ID = common.UUIDint64()
			s.CategoryId = category.ID
			if err := a.gormDB.Create(&s).Error; err != nil {
				zap.L().Error("failed to create default service", zap.String("name", s.Name), zap.Error(err))
			}
		}
		zap.L().Info("initialized default category", zap.String("name", c.Name))
	}
}
