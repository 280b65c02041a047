package device

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

// ulogDeviceData marks a finished content download on the device.
const ulogDeviceData = "device_data"

// Frame is one inbound message from a player.
type Frame struct {
	CommandsAcknowledge []int            `json:"commands_acknowledge"`
	Telemetry           *Telemetry       `json:"telemetry"`
	Synchronization     *Synchronization `json:"synchronization"`
	ULogs               []ULog           `json:"ulogs"`
}

type Telemetry struct {
	Version *string    `json:"version"`
	Time    *time.Time `json:"time"`
	Disk    *Disk      `json:"disk"`
}

type Disk struct {
	Data *DiskUsage `json:"data"`
}

type DiskUsage struct {
	Available float64 `json:"available"`
	Total     float64 `json:"total"`
}

type Synchronization struct {
	Progress float64 `json:"progress"`
}

type ULog struct {
	Datetime time.Time `json:"datetime"`
	Type     string    `json:"type"`
}

// CommandsFrame is the only message sent to players: their full pending list.
type CommandsFrame struct {
	Commands []model.Command `json:"commands"`
}

func parseFrame(msg []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, fmt.Errorf("malformed frame: %w", err)
	}
	return f, nil
}

// apply folds the frame's telemetry into p, stamping now as last online.
func (f Frame) apply(p *model.Player, now time.Time) {
	now = now.UTC()
	p.LastOnline = &now

	if t := f.Telemetry; t != nil {
		p.Version = t.Version
		p.DeviceTime = t.Time
		if t.Disk != nil && t.Disk.Data != nil && t.Disk.Data.Total > 0 {
			p.Data = int(t.Disk.Data.Available / t.Disk.Data.Total * 100)
		}
	}

	for _, l := range f.ULogs {
		if l.Type == ulogDeviceData {
			at := l.Datetime
			p.LastSync = &at
			p.Percent = model.UnknownPercent
		}
	}

	if f.Synchronization == nil {
		p.Percent = model.UnknownPercent
	} else {
		p.Percent = int(math.Round(f.Synchronization.Progress * 100))
	}
}
