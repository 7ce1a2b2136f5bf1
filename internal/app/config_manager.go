package app

import (
	"sync"
	"time"

	"github.com/salonbook/salonbook/internal/domain"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const configCacheTTL = 30 * time.Second

// ConfigManager caches the sys_config table and exposes typed accessors.
type ConfigManager struct {
	db       *gorm.DB
	mu       sync.RWMutex
	cache    map[string]string
	loadedAt time.Time
}

func NewConfigManager(db *gorm.DB) *ConfigManager {
	return &ConfigManager{db: db, cache: map[string]string{}}
}

func (cm *ConfigManager) reload() {
	var configs []domain.SysConfig
	if err := cm.db.Find(&configs).Error; err != nil {
		zap.L().Error("failed to load sys_config", zap.Error(err))
		return
	}
	fresh := make(map[string]string, len(configs))
	for _, c := range configs {
		fresh[c.Type+"."+c.Name] = c.Value
	}
	cm.cache = fresh
	cm.loadedAt = time.Now()
}

func (cm *ConfigManager) value(category, name string) string {
	cm.mu.RLock()
	expired := time.Since(cm.loadedAt) > configCacheTTL
	v, found := cm.cache[category+"."+name]
	cm.mu.RUnlock()
	if !expired && found {
		return v
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if time.Since(cm.loadedAt) > configCacheTTL {
		cm.reload()
	}
	return cm.cache[category+"."+name]
}

func (cm *ConfigManager) GetString(category, name string) string {
	return cm.value(category, name)
}

func (cm *ConfigManager) GetInt(category, name string) int {
	return cast.ToInt(cm.value(category, name))
}

func (cm *ConfigManager) GetInt64(category, name string) int64 {
	return cast.ToInt64(cm.value(category, name))
}

func (cm *ConfigManager) GetBool(category, name string) bool {
	return cast.ToBool(cm.value(category, name))
}

// Set writes a setting through to the table and invalidates the cache.
func (cm *ConfigManager) Set(category, name, value string) error {
	var cfg domain.SysConfig
	err := cm.db.Where("type = ? AND name = ?", category, name).First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		err = cm.db.Create(&domain.SysConfig{Type: category, Name: name, Value: value}).Error
	} else if err == nil {
		err = cm.db.Model(&domain.SysConfig{}).Where("id = ?", cfg.ID).Update("value", value).Error
	}
	if err != nil {
		return err
	}
	cm.mu.Lock()
	cm.loadedAt = time.Time{}
	cm.mu.Unlock()
	return nil
}
