package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Schedule, randomizer and switch handles.
const (
	HandleOpen    = "open"
	HandleClosed  = "closed"
	HandleA       = "a"
	HandleB       = "b"
	HandleNoMatch = "default"
)

// SwitchConfig configures a switch node.
type SwitchConfig struct {
	Conditions []Condition `mapstructure:"conditions"`
}

func (c *SwitchConfig) validate() error {
	if len(c.Conditions) == 0 {
		return fmt.Errorf("at least one condition is required")
	}
	for i := range c.Conditions {
		cond := &c.Conditions[i]
		if err := cond.validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i+1, err)
		}
		if cond.Handle == "" {
			cond.Handle = fmt.Sprintf("condition-%d", i+1)
		}
	}
	return nil
}

type switchHandler struct{}

func (switchHandler) Type() string { return TypeSwitch }

func (switchHandler) Decode(data map[string]any) (any, error) {
	return decodeConfig[SwitchConfig](data)
}

func (h switchHandler) Execute(_ context.Context, run *Run, node *Node) (Outcome, error) {
	cfg, err := configOf[SwitchConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}
	for _, cond := range cfg.Conditions {
		value, present := run.lookup(cond.Variable)
		if cond.Evaluate(value, present) {
			return Outcome{Handle: cond.Handle, Detail: cond.Variable + " " + cond.Operator}, nil
		}
	}
	return Outcome{Handle: HandleNoMatch, Detail: "no condition matched"}, nil
}

// RandomizerConfig configures a randomizer node.
type RandomizerConfig struct {
	Percent int `mapstructure:"percent"`
}

func (c *RandomizerConfig) validate() error {
	if c.Percent < 0 || c.Percent > 100 {
		return fmt.Errorf("percent must be between 0 and 100")
	}
	return nil
}

type randomizerHandler struct{}

func (randomizerHandler) Type() string { return TypeRandomizer }

func (randomizerHandler) Decode(data map[string]any) (any, error) {
	return decodeConfig[RandomizerConfig](data)
}

func (h randomizerHandler) Execute(_ context.Context, run *Run, node *Node) (Outcome, error) {
	cfg, err := configOf[RandomizerConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}
	roll := run.svc.Random() * 100
	if roll < float64(cfg.Percent) {
		return Outcome{Handle: HandleA}, nil
	}
	return Outcome{Handle: HandleB}, nil
}

// IntervalConfig configures an interval node.
type IntervalConfig struct {
	Seconds int `mapstructure:"seconds"`
}

func (c *IntervalConfig) validate() error {
	if c.Seconds <= 0 {
		return fmt.Errorf("seconds must be positive")
	}
	return nil
}

type intervalHandler struct{}

func (intervalHandler) Type() string { return TypeInterval }

func (intervalHandler) Decode(data map[string]any) (any, error) {
	return decodeConfig[IntervalConfig](data)
}

func (h intervalHandler) Execute(_ context.Context, _ *Run, node *Node) (Outcome, error) {
	cfg, err := configOf[IntervalConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}
	pause := time.Duration(cfg.Seconds) * time.Second
	return Outcome{Pause: pause, Detail: pause.String()}, nil
}

// InactivitySettings control how idle contacts are warned and released.
type InactivitySettings struct {
	Timeout         int    `mapstructure:"timeout" json:"timeout"`
	MaxWarnings     int    `mapstructure:"maxWarnings" json:"max_warnings"`
	WarningMessage  string `mapstructure:"warningMessage" json:"warning_message,omitempty"`
	EndMessage      string `mapstructure:"endMessage" json:"end_message,omitempty"`
	TransferQueueID string `mapstructure:"transferQueueId" json:"transfer_queue_id,omitempty"`
}

func (c *InactivitySettings) validate() error {
	if c.Timeout < 0 || c.MaxWarnings < 0 {
		return fmt.Errorf("timeout and maxWarnings cannot be negative")
	}
	return nil
}

// TimeoutDuration returns the timeout as a duration.
func (c InactivitySettings) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// DecodeInactivity reads an execution's inactivity override.
func DecodeInactivity(raw datatypes.JSON) (*InactivitySettings, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var settings InactivitySettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("flow: decode inactivity override: %w", err)
	}
	return &settings, nil
}

type inactivityHandler struct{}

func (inactivityHandler) Type() string { return TypeInactivity }

func (inactivityHandler) Decode(data map[string]any) (any, error) {
	return decodeConfig[InactivitySettings](data)
}

func (h inactivityHandler) Execute(_ context.Context, run *Run, node *Node) (Outcome, error) {
	cfg, err := configOf[InactivitySettings](node, h)
	if err != nil {
		return Outcome{}, err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return Outcome{}, err
	}
	run.Execution.Inactivity = datatypes.JSON(raw)
	run.Execution.WarningsSent = 0
	run.Execution.LastWarningAt = nil
	return Outcome{Detail: fmt.Sprintf("timeout=%ds warnings=%d", cfg.Timeout, cfg.MaxWarnings)}, nil
}

// TimeRange is an opening window on a set of weekdays. A range whose end is
// before its start runs past midnight into the next day.
type TimeRange struct {
	Days  []string `mapstructure:"days"`
	Start string   `mapstructure:"start"`
	End   string   `mapstructure:"end"`

	weekdays []time.Weekday
	from, to int
}

// ScheduleConfig configures a schedule node.
type ScheduleConfig struct {
	Timezone string      `mapstructure:"timezone"`
	Ranges   []TimeRange `mapstructure:"ranges"`
	Holidays []string    `mapstructure:"holidays"`

	location *time.Location
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday, "0": time.Sunday,
	"mon": time.Monday, "monday": time.Monday, "1": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday, "2": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday, "3": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday, "4": time.Thursday,
	"fri": time.Friday, "friday": time.Friday, "5": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday, "6": time.Saturday,
}

func (c *ScheduleConfig) validate() error {
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("unknown timezone %q", c.Timezone)
		}
		c.location = loc
	}
	if len(c.Ranges) == 0 {
		return fmt.Errorf("at least one time range is required")
	}
	for i := range c.Ranges {
		r := &c.Ranges[i]
		if len(r.Days) == 0 {
			return fmt.Errorf("range %d: days are required", i+1)
		}
		r.weekdays = r.weekdays[:0]
		for _, day := range r.Days {
			wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(day))]
			if !ok {
				return fmt.Errorf("range %d: unknown day %q", i+1, day)
			}
			r.weekdays = append(r.weekdays, wd)
		}
		var err error
		if r.from, err = parseClock(r.Start); err != nil {
			return fmt.Errorf("range %d: start: %w", i+1, err)
		}
		if r.to, err = parseClock(r.End); err != nil {
			return fmt.Errorf("range %d: end: %w", i+1, err)
		}
		if r.from == r.to {
			return fmt.Errorf("range %d: start and end are equal", i+1)
		}
	}
	for _, day := range c.Holidays {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return fmt.Errorf("holiday %q must be YYYY-MM-DD", day)
		}
	}
	return nil
}

func parseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("time %q must be HH:MM", value)
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q must be HH:MM", value)
	}
	return h*60 + m, nil
}

// IsOpen reports whether t falls inside an opening window.
func (c *ScheduleConfig) IsOpen(t time.Time, fallback *time.Location) bool {
	loc := c.location
	if loc == nil {
		loc = fallback
	}
	if loc != nil {
		t = t.In(loc)
	}

	today := t.Format("2006-01-02")
	for _, day := range c.Holidays {
		if day == today {
			return false
		}
	}

	minute := t.Hour()*60 + t.Minute()
	weekday := t.Weekday()
	yesterday := (weekday + 6) % 7

	for _, r := range c.Ranges {
		for _, wd := range r.weekdays {
			if r.from < r.to {
				if wd == weekday && minute >= r.from && minute < r.to {
					return true
				}
				continue
			}
			if wd == weekday && minute >= r.from {
				return true
			}
			if wd == yesterday && minute < r.to {
				return true
			}
		}
	}
	return false
}

type scheduleHandler struct{}

func (scheduleHandler) Type() string { return TypeSchedule }

func (scheduleHandler) Decode(data map[string]any) (any, error) {
	return decodeConfig[ScheduleConfig](data)
}

func (h scheduleHandler) Execute(_ context.Context, run *Run, node *Node) (Outcome, error) {
	cfg, err := configOf[ScheduleConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}
	if cfg.IsOpen(run.Now, run.Location()) {
		return Outcome{Handle: HandleOpen}, nil
	}
	return Outcome{Handle: HandleClosed}, nil
}
