package model

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OCAP2/parachute/internal/geo"
	"github.com/OCAP2/parachute/pkg/core"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&GameMap{},
	&MapSession{},
	&Flight{},
	&RecorderPerformance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// RecorderPerformance is a periodic snapshot of the recorder pipeline
type RecorderPerformance struct {
	Time                time.Time  `json:"time" gorm:"index:idx_recperf_time"`
	MapSessionID        uint       `json:"mapSessionId" gorm:"index:idx_recperf_map_session_id"`
	MapSession          MapSession `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MapSessionID;"`
	Phase               string     `json:"phase" gorm:"size:16"`
	Tracked             uint16     `json:"tracked"`
	Mounted             uint16     `json:"mounted"`
	QueueLength         uint16     `json:"queueLength"`
	LastWriteDurationMs float32    `json:"lastWriteDurationMs"`
}

func (*RecorderPerformance) TableName() string {
	return "recorder_performances"
}

////////////////////////
// RECORDING MODELS
////////////////////////

// GameMap is a map the server has loaded at least once
type GameMap struct {
	gorm.Model
	Name     string `json:"name" gorm:"size:127;uniqueIndex"`
	Sessions []MapSession
}

func (*GameMap) TableName() string {
	return "maps"
}

// GetOrInsert loads the map row by name, creating it when missing.
func (m *GameMap) GetOrInsert(db *gorm.DB) (
	created bool,
	err error,
) {
	var existing GameMap
	err = db.Where("name = ?", m.Name).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = db.Create(m).Error
			return true, err
		}
		return false, err
	}
	// overwrite with db record if found
	*m = existing
	return false, nil
}

// MapSession is one load of a map, from map start until the next one
type MapSession struct {
	gorm.Model
	GameMapID uint         `json:"mapId"`
	GameMap   GameMap      `json:"-" gorm:"foreignkey:GameMapID"`
	StartedAt time.Time    `json:"startedAt" gorm:"index:idx_map_session_start"`
	EndedAt   sql.NullTime `json:"endedAt"`
	Flights   []Flight
}

func (*MapSession) TableName() string {
	return "map_sessions"
}

// Flight is one attach→detach cycle of a mount
type Flight struct {
	ID           uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	UUID         string         `json:"uuid" gorm:"size:36;uniqueIndex"`
	MapSessionID uint           `json:"mapSessionId" gorm:"index:idx_flight_map_session_id"`
	MapSession   MapSession     `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MapSessionID;"`
	MapName      string         `json:"mapName" gorm:"size:127"`
	Round        int            `json:"round"`
	Slot         int            `json:"slot"`
	PlayerName   string         `json:"playerName" gorm:"size:64"`
	Team         string         `json:"team" gorm:"size:16"`
	MountType    string         `json:"mountType" gorm:"size:64;index:idx_flight_mount_type"`
	StartedAt    time.Time      `json:"startedAt" gorm:"index:idx_flight_started_at"`
	EndedAt      time.Time      `json:"endedAt"`
	AirtimeMs    int64          `json:"airtimeMs"`
	MaxSpeed     float64        `json:"maxSpeed"`
	Distance     float64        `json:"distance"`
	Drop         float64        `json:"drop"`
	Reason       string         `json:"reason" gorm:"size:32"`
	Path         string         `json:"path" gorm:"type:text"`
	Samples      datatypes.JSON `json:"samples"`
}

func (*Flight) TableName() string {
	return "flights"
}

// NewFlight converts a finished session for storage under mapSessionID.
func NewFlight(mapSessionID uint, f *core.FlightSession) (Flight, error) {
	samples, err := json.Marshal(f.Path)
	if err != nil {
		return Flight{}, fmt.Errorf("failed to encode samples for flight %s: %w", f.ID, err)
	}
	return Flight{
		UUID:         f.ID,
		MapSessionID: mapSessionID,
		MapName:      f.MapName,
		Round:        f.Round,
		Slot:         f.Slot,
		PlayerName:   f.PlayerName,
		Team:         f.Team.String(),
		MountType:    f.MountType,
		StartedAt:    f.StartedAt,
		EndedAt:      f.EndedAt,
		AirtimeMs:    f.Airtime.Milliseconds(),
		MaxSpeed:     f.MaxSpeed,
		Distance:     f.Distance,
		Drop:         f.Drop,
		Reason:       string(f.Reason),
		Path:         geo.PathWKT(f.Path),
		Samples:      datatypes.JSON(samples),
	}, nil
}

// Session rebuilds the flight session. Team names that do not parse come back
// as TeamNone.
func (f *Flight) Session() (core.FlightSession, error) {
	var path []core.PathSample
	if len(f.Samples) > 0 {
		if err := json.Unmarshal(f.Samples, &path); err != nil {
			return core.FlightSession{}, fmt.Errorf("failed to decode samples for flight %s: %w", f.UUID, err)
		}
	}
	return core.FlightSession{
		ID:         f.UUID,
		MapName:    f.MapName,
		Round:      f.Round,
		Slot:       f.Slot,
		PlayerName: f.PlayerName,
		Team:       core.ParseTeam(f.Team),
		MountType:  f.MountType,
		StartedAt:  f.StartedAt,
		EndedAt:    f.EndedAt,
		Airtime:    time.Duration(f.AirtimeMs) * time.Millisecond,
		MaxSpeed:   f.MaxSpeed,
		Distance:   f.Distance,
		Drop:       f.Drop,
		Reason:     core.DetachReason(f.Reason),
		Path:       path,
	}, nil
}
