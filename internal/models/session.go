// ===============================
// internal/models/session.go - Authoring Session State
// ===============================

package models

import "time"

// Step is the authoring conversation state. The walk is
// SelectingTarget -> AwaitingFirstBoundary -> AwaitingLastBoundary ->
// ReadyToPublish, terminating in Published or Cancelled.
type Step string

const (
	StepSelectingTarget       Step = "selecting_target"
	StepAwaitingFirstBoundary Step = "awaiting_first_boundary"
	StepAwaitingLastBoundary  Step = "awaiting_last_boundary"
	StepReadyToPublish        Step = "ready_to_publish"
	StepPublished             Step = "published"
	StepCancelled             Step = "cancelled"
)

// TargetLevel tracks which tree level SelectingTarget is currently resolving.
type TargetLevel string

const (
	LevelSeries   TargetLevel = "series"
	LevelLanguage TargetLevel = "language"
	LevelSeason   TargetLevel = "season"
	LevelQuality  TargetLevel = "quality"
)

// MenuOption is one entry of the last-rendered menu. Callback payloads carry
// only an index into this slice, so Telegram's 64-byte callback-data limit
// never constrains catalog names.
type MenuOption struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Session is the ephemeral per-operator authoring state. It holds only keys
// into the catalog, never catalog content, and dies with the process.
type Session struct {
	OperatorID int64       `json:"operatorId"`
	Step       Step        `json:"step"`
	Level      TargetLevel `json:"level"`

	SeriesKey   string `json:"seriesKey"`
	LanguageKey string `json:"languageKey"`
	SeasonKey   string `json:"seasonKey"`
	QualityKey  string `json:"qualityKey"`

	// First boundary collected so far; the channel both boundaries must share.
	FirstID   int   `json:"firstId"`
	ChannelID int64 `json:"channelId"`

	// Last-rendered menu context for index-based callbacks.
	MenuOptions []MenuOption `json:"menuOptions,omitempty"`

	// Pending action awaiting a second confirmation (destructive ops).
	PendingAction string `json:"pendingAction,omitempty"`

	LastActivity time.Time `json:"lastActivity"`
}

// Path returns the quality path resolved so far.
func (s *Session) Path() QualityPath {
	return QualityPath{
		Series:   s.SeriesKey,
		Language: s.LanguageKey,
		Season:   s.SeasonKey,
		Quality:  s.QualityKey,
	}
}

// Touch refreshes the inactivity clock.
func (s *Session) Touch() {
	s.LastActivity = time.Now()
}

// Expired reports whether the session passed the inactivity window.
func (s *Session) Expired(ttl time.Duration) bool {
	return time.Since(s.LastActivity) > ttl
}
