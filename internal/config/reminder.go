package config

import (
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReminderPolicy holds the tunables of the reminder and overdue jobs that
// operators may change without a restart.
type ReminderPolicy struct {
	OverdueWindowDays   int           `mapstructure:"overdueWindowDays"`
	OverdueMinInvoices  int           `mapstructure:"overdueMinInvoices"`
	SendTimeout         time.Duration `mapstructure:"sendTimeout"`
	ManualReminderRate  float64       `mapstructure:"manualReminderRate"`
	ManualReminderBurst int           `mapstructure:"manualReminderBurst"`
}

func DefaultReminderPolicy() ReminderPolicy {
	return ReminderPolicy{
		OverdueWindowDays:   15,
		OverdueMinInvoices:  2,
		SendTimeout:         15 * time.Second,
		ManualReminderRate:  1.0 / 3600,
		ManualReminderBurst: 3,
	}
}

type ReminderPolicyHolder struct {
	current atomic.Value // holds ReminderPolicy
}

// NewStaticReminderPolicyHolder returns a holder that never reloads.
func NewStaticReminderPolicyHolder(policy ReminderPolicy) *ReminderPolicyHolder {
	holder := &ReminderPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewReminderPolicyHolder(cfg Config, log *zap.Logger) (*ReminderPolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.reminders")

	v := viper.New()
	if path := strings.TrimSpace(cfg.Scheduler.PolicyFile); path != "" {
		v.SetConfigFile(filepath.Clean(path))
	} else {
		v.SetConfigName("reminders")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/uptiomio")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("UPTIOMIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReminderPolicy()
	v.SetDefault("reminders.overdueWindowDays", defaults.OverdueWindowDays)
	v.SetDefault("reminders.overdueMinInvoices", defaults.OverdueMinInvoices)
	v.SetDefault("reminders.sendTimeout", defaults.SendTimeout)
	v.SetDefault("reminders.manualReminderRate", defaults.ManualReminderRate)
	v.SetDefault("reminders.manualReminderBurst", defaults.ManualReminderBurst)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var policy ReminderPolicy
	if err := v.UnmarshalKey("reminders", &policy); err != nil {
		return nil, err
	}
	if err := validateReminderPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticReminderPolicyHolder(policy)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReminderPolicy
		if err := v.UnmarshalKey("reminders", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateReminderPolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reminder policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *ReminderPolicyHolder) Get() ReminderPolicy {
	if h == nil {
		return DefaultReminderPolicy()
	}
	policy, ok := h.current.Load().(ReminderPolicy)
	if !ok {
		return DefaultReminderPolicy()
	}
	return policy
}

func validateReminderPolicy(policy ReminderPolicy) error {
	if policy.OverdueWindowDays <= 0 {
		return errors.New("reminders.overdueWindowDays must be positive")
	}
	if policy.OverdueMinInvoices < 2 {
		return errors.New("reminders.overdueMinInvoices must be at least 2")
	}
	if policy.SendTimeout <= 0 {
		return errors.New("reminders.sendTimeout must be positive")
	}
	if policy.ManualReminderRate <= 0 || policy.ManualReminderBurst <= 0 {
		return errors.New("reminders.manualReminder rate and burst must be positive")
	}
	return nil
}
