package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/fr3shw3b/fix-session-engine/pkg/schedule"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/fr3shw3b/fix-session-engine/pkg/sessions"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	ScheduleAlways = "always"
	ScheduleDaily  = "daily"
	ScheduleWeekly = "weekly"
)

// Config is the configuration shared by the acceptor and the initiator,
// read from the environment.
type Config struct {
	SessionID     sessions.SessionID
	Settings      session.Settings
	Schedule      schedule.Schedule
	StateFile     string
	StoreCapacity int
	FlushInterval time.Duration
	LogLevel      string
}

func Load() (*Config, error) {
	return load(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	defaults := session.DefaultSettings()
	v.SetDefault("BEGIN_STRING", defaults.BeginString)
	v.SetDefault("HEARTBEAT_INTERVAL", int(defaults.HeartbeatInterval/time.Second))
	v.SetDefault("LOGON_TIMEOUT", int(defaults.LogonTimeout/time.Second))
	v.SetDefault("LOGOUT_TIMEOUT", int(defaults.LogoutTimeout/time.Second))
	v.SetDefault("CONNECT_INTERVAL", int(defaults.ConnectInterval/time.Second))
	v.SetDefault("LOGON_INTERVAL", int(defaults.LogonInterval/time.Second))
	v.SetDefault("ERROR_RECOVERY_INTERVAL", int(defaults.ErrorRecoveryInterval/time.Second))
	v.SetDefault("RESET_SEQ_NUMS_ON_LOGON", defaults.ResetSeqNumsOnLogon)
	v.SetDefault("SEND_NEXT_EXPECTED_SEQ_NUM", defaults.SendNextExpectedSeqNum)
	v.SetDefault("QUEUE_OUT_OF_ORDER", defaults.QueueOutOfOrder)
	v.SetDefault("INBOUND_BUFFER_SIZE", defaults.InboundBufferSize)
	v.SetDefault("OUTBOUND_BUFFER_SIZE", defaults.OutboundBufferSize)
	v.SetDefault("DECIMAL_PRECISION", defaults.DecimalPrecision)
	v.SetDefault("STATE_FILE", "")
	v.SetDefault("STORE_CAPACITY", 1<<20)
	v.SetDefault("FLUSH_INTERVAL", 100)
	v.SetDefault("SCHEDULE", ScheduleAlways)
	v.SetDefault("SCHEDULE_TIMEZONE", "UTC")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MAX_RECONNECTION_ATTEMPTS", 100)
	v.SetDefault("TRANSPORT", TransportTCP)
	return v
}

func load(v *viper.Viper) (*Config, error) {
	conf := &Config{
		SessionID: sessions.SessionID{
			SenderCompID: v.GetString("SENDER_COMP_ID"),
			SenderSubID:  v.GetString("SENDER_SUB_ID"),
			TargetCompID: v.GetString("TARGET_COMP_ID"),
			TargetSubID:  v.GetString("TARGET_SUB_ID"),
		},
		StateFile: v.GetString("STATE_FILE"),
		LogLevel:  v.GetString("LOG_LEVEL"),
	}
	if conf.SessionID.SenderCompID == "" || conf.SessionID.TargetCompID == "" {
		return nil, fmt.Errorf("%w: SENDER_COMP_ID and TARGET_COMP_ID are required", ErrInvalidConfig)
	}

	ints := map[string]int{}
	for _, key := range []string{
		"HEARTBEAT_INTERVAL", "LOGON_TIMEOUT", "LOGOUT_TIMEOUT", "CONNECT_INTERVAL",
		"LOGON_INTERVAL", "ERROR_RECOVERY_INTERVAL", "INBOUND_BUFFER_SIZE",
		"OUTBOUND_BUFFER_SIZE", "DECIMAL_PRECISION", "STORE_CAPACITY", "FLUSH_INTERVAL",
	} {
		value, err := intValue(v, key)
		if err != nil {
			return nil, err
		}
		ints[key] = value
	}
	bools := map[string]bool{}
	for _, key := range []string{"RESET_SEQ_NUMS_ON_LOGON", "SEND_NEXT_EXPECTED_SEQ_NUM", "QUEUE_OUT_OF_ORDER"} {
		value, err := boolValue(v, key)
		if err != nil {
			return nil, err
		}
		bools[key] = value
	}

	conf.Settings = session.Settings{
		BeginString:            v.GetString("BEGIN_STRING"),
		HeartbeatInterval:      seconds(ints["HEARTBEAT_INTERVAL"]),
		LogonTimeout:           seconds(ints["LOGON_TIMEOUT"]),
		LogoutTimeout:          seconds(ints["LOGOUT_TIMEOUT"]),
		ConnectInterval:        seconds(ints["CONNECT_INTERVAL"]),
		LogonInterval:          seconds(ints["LOGON_INTERVAL"]),
		ErrorRecoveryInterval:  seconds(ints["ERROR_RECOVERY_INTERVAL"]),
		ResetSeqNumsOnLogon:    bools["RESET_SEQ_NUMS_ON_LOGON"],
		SendNextExpectedSeqNum: bools["SEND_NEXT_EXPECTED_SEQ_NUM"],
		QueueOutOfOrder:        bools["QUEUE_OUT_OF_ORDER"],
		InboundBufferSize:      ints["INBOUND_BUFFER_SIZE"],
		OutboundBufferSize:     ints["OUTBOUND_BUFFER_SIZE"],
		DecimalPrecision:       ints["DECIMAL_PRECISION"],
	}
	if err := conf.Settings.Validate(); err != nil {
		return nil, err
	}
	conf.StoreCapacity = ints["STORE_CAPACITY"]
	conf.FlushInterval = time.Duration(ints["FLUSH_INTERVAL"]) * time.Millisecond
	if conf.FlushInterval <= 0 {
		return nil, fmt.Errorf("%w: FLUSH_INTERVAL must be positive", ErrInvalidConfig)
	}

	sched, err := loadSchedule(v)
	if err != nil {
		return nil, err
	}
	conf.Schedule = sched
	return conf, nil
}

func loadSchedule(v *viper.Viper) (schedule.Schedule, error) {
	kind := strings.ToLower(v.GetString("SCHEDULE"))
	if kind == ScheduleAlways {
		return schedule.Always{}, nil
	}

	loc, err := time.LoadLocation(v.GetString("SCHEDULE_TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("%w: SCHEDULE_TIMEZONE: %w", ErrInvalidConfig, err)
	}
	start, err := schedule.ParseTimeOfDay(v.GetString("SCHEDULE_START_TIME"))
	if err != nil {
		return nil, fmt.Errorf("%w: SCHEDULE_START_TIME: %w", ErrInvalidConfig, err)
	}
	end, err := schedule.ParseTimeOfDay(v.GetString("SCHEDULE_END_TIME"))
	if err != nil {
		return nil, fmt.Errorf("%w: SCHEDULE_END_TIME: %w", ErrInvalidConfig, err)
	}

	switch kind {
	case ScheduleDaily:
		return schedule.Daily{Start: start, End: end, Location: loc}, nil
	case ScheduleWeekly:
		startDay, err := schedule.ParseWeekday(v.GetString("SCHEDULE_START_DAY"))
		if err != nil {
			return nil, fmt.Errorf("%w: SCHEDULE_START_DAY: %w", ErrInvalidConfig, err)
		}
		endDay, err := schedule.ParseWeekday(v.GetString("SCHEDULE_END_DAY"))
		if err != nil {
			return nil, fmt.Errorf("%w: SCHEDULE_END_DAY: %w", ErrInvalidConfig, err)
		}
		return schedule.Weekly{StartDay: startDay, Start: start, EndDay: endDay, End: end, Location: loc}, nil
	}
	return nil, fmt.Errorf("%w: unknown SCHEDULE %q", ErrInvalidConfig, kind)
}

func intValue(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidConfig, key, raw)
	}
	return value, nil
}

func boolValue(v *viper.Viper, key string) (bool, error) {
	raw := strings.TrimSpace(v.GetString(key))
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", ErrInvalidConfig, key, raw)
	}
	return value, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
