// Package schedule turns a player's calendar into the content package the
// device plays from.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

// ErrUnsupportedContent aborts a compilation that meets a content kind no
// player can render.
var ErrUnsupportedContent = errors.New("schedule: unsupported content type")

// untilYears is how far ahead a dated trigger stays valid.
const untilYears = 100

// Source loads the assignments bound to a calendar, in persistence order.
type Source interface {
	ListAssignments(ctx context.Context, calendarID int) ([]model.Assignment, error)
}

type Option func(*Compiler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Compiler) { c.now = now }
}

// WithPackageID replaces the random package id generator.
func WithPackageID(next func() int) Option {
	return func(c *Compiler) { c.nextID = next }
}

// Compiler is safe for concurrent use; each call works on its own state.
type Compiler struct {
	src    Source
	now    func() time.Time
	nextID func() int
}

func NewCompiler(src Source, opts ...Option) *Compiler {
	c := &Compiler{
		src:    src,
		now:    time.Now,
		nextID: randomPackageID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func randomPackageID() int {
	return 15 + rand.Intn(math.MaxInt32-15)
}

// Compile builds the content package for p. File URLs are baseURL followed
// by the content's stored path. A player without a calendar gets an empty
// package.
func (c *Compiler) Compile(ctx context.Context, p model.Player, baseURL string) (*model.SyncPackage, error) {
	pkg := &model.SyncPackage{
		ID: c.nextID(),
		ContentPackage: model.ContentPackage{
			Triggers:      []model.Trigger{},
			PlaybackItems: []model.PlaybackItem{},
			Files:         []model.File{},
		},
	}
	if p.CalendarID == nil {
		return pkg, nil
	}

	assignments, err := c.src.ListAssignments(ctx, *p.CalendarID)
	if err != nil {
		return nil, fmt.Errorf("load calendar %d: %w", *p.CalendarID, err)
	}

	today := c.now().UTC().Truncate(24 * time.Hour)
	until := today.AddDate(untilYears, 0, 0)

	files := newFileIndex(baseURL)
	out := &pkg.ContentPackage
	triggerID := 0
	var base *model.Trigger

	for _, a := range assignments {
		items := make([]int, 0, len(a.Playlist.Entries))
		for _, entry := range a.Playlist.Entries {
			ci, err := contentItem(entry, files)
			if err != nil {
				log.Error().Err(err).
					Int("player_id", p.ID).
					Int("content_id", entry.Content.ID).
					Msg("failed to compile schedule")
				return nil, err
			}
			items = append(items, len(out.PlaybackItems))
			out.PlaybackItems = append(out.PlaybackItems, model.PlaybackItem{
				ID:           entry.Content.ID,
				ContentItems: []model.ContentItem{ci},
			})
		}
		if len(items) == 0 {
			continue
		}

		t := model.Trigger{
			ID:            triggerID,
			Type:          model.TriggerSchedule,
			PlaybackItems: items,
		}
		triggerID++

		if a.Base {
			base = &t
			continue
		}
		t.Data.RRule = recurrence(a.Intervals, today, until)
		out.Triggers = append(out.Triggers, t)
	}

	if base != nil {
		out.Triggers = append(out.Triggers, *base)
	}
	out.Files = files.files
	return pkg, nil
}

// recurrence applies the window of the first interval to every listed weekday.
func recurrence(intervals model.IntervalMap, today, until time.Time) model.RRule {
	if len(intervals) == 0 {
		return model.RRule{}
	}
	first := intervals[0]
	start := today.Add(time.Duration(first.Start) * time.Minute)
	end := until.Add(time.Duration(first.End) * time.Minute)
	return model.RRule{
		DTStart:   &start,
		Until:     &end,
		ByWeekday: intervals.Weekdays(),
	}
}

func contentItem(entry model.PlaylistEntry, files *fileIndex) (model.ContentItem, error) {
	content := entry.Content
	switch content.Type {
	case model.ContentImage:
		idx := files.ref(content, entry.Duration, &model.FileData{
			Width:  content.Width,
			Height: content.Height,
		})
		return model.ContentItem{
			Type:  model.ContentImage,
			Data:  model.ContentItemData{Duration: entry.Duration},
			Files: []int{idx},
		}, nil

	case model.ContentVideo:
		idx := files.ref(content, content.Duration, &model.FileData{
			Duration: content.Duration,
			Width:    content.Width,
			Height:   content.Height,
		})
		return model.ContentItem{
			Type:  model.ContentVideo,
			Data:  model.ContentItemData{Duration: content.Duration},
			Files: []int{idx},
		}, nil

	case model.ContentHTML, model.ContentURL:
		if content.HasStoredFile() {
			idx := files.ref(content, entry.Duration, nil)
			return model.ContentItem{
				Type:  model.ContentHTML,
				Data:  model.ContentItemData{Duration: entry.Duration},
				Files: []int{idx},
			}, nil
		}
		return model.ContentItem{
			Type: model.ContentHTML,
			Data: model.ContentItemData{
				Duration: entry.Duration,
				URL:      content.URL,
				Context:  model.ContextFullscreen,
			},
		}, nil
	}
	return model.ContentItem{}, fmt.Errorf("%w: %q (content %d)", ErrUnsupportedContent, content.Type, content.ID)
}
