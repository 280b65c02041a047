package model

import "time"

// TriggerSchedule is the only trigger type the compiler emits.
const TriggerSchedule = "schedule"

// ContextFullscreen renders URL content across the whole screen.
const ContextFullscreen = "fullscreen"

// SyncPackage is the device-ready answer to a schedule pull. ID only tells
// responses apart.
type SyncPackage struct {
	ID             int            `json:"id"`
	ContentPackage ContentPackage `json:"content_package"`
}

type ContentPackage struct {
	Triggers      []Trigger      `json:"triggers"`
	PlaybackItems []PlaybackItem `json:"playback_items"`
	Files         []File         `json:"files"`
}

type Trigger struct {
	ID            int         `json:"id"`
	Type          string      `json:"type"`
	Data          TriggerData `json:"data"`
	PlaybackItems []int       `json:"playback_items"`
}

type TriggerData struct {
	RRule RRule `json:"rrule"`
}

// RRule is the recurrence a trigger is active on. An empty rule never expires.
type RRule struct {
	DTStart   *time.Time `json:"dtstart,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
	ByWeekday []int      `json:"byweekday,omitempty"`
}

type PlaybackItem struct {
	ID           int           `json:"id"`
	ContentItems []ContentItem `json:"content_items"`
}

type ContentItem struct {
	Type  string          `json:"type"`
	Data  ContentItemData `json:"content_item_data"`
	Files []int           `json:"files,omitempty"`
}

type ContentItemData struct {
	Duration int    `json:"duration,string"`
	URL      string `json:"url,omitempty"`
	Context  string `json:"context,omitempty"`
}

type File struct {
	ID   string    `json:"id"`
	Size int64     `json:"size"`
	MD5  string    `json:"md5"`
	URL  string    `json:"url"`
	Data *FileData `json:"data,omitempty"`
}

type FileData struct {
	Duration int `json:"duration,omitempty"`
	Width    int `json:"width,omitempty"`
	Height   int `json:"height,omitempty"`
}
