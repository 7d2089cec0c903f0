package model

import (
	"time"

	"github.com/google/uuid"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&OwlInfo{},
	&Recording{},
	&Tracker{},
	&Device{},
	&MarkerSample{},
	&RigidSample{},
	&ServerError{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// OwlInfo identifies the site a database belongs to
type OwlInfo struct {
	gorm.Model
	SiteName        string `json:"siteName" gorm:"size:127"`
	SiteDescription string `json:"siteDescription" gorm:"size:255"`
}

func (*OwlInfo) TableName() string {
	return "owl_infos"
}

////////////////////////
// RECORDING DATA
////////////////////////

// Recording is one session captured from a tracking server
type Recording struct {
	ID            uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt `json:"deletedAt" gorm:"index"`
	Name          string         `json:"name" gorm:"size:128"`
	Tag           string         `json:"tag" gorm:"size:64"`
	StartTime     time.Time      `json:"startTime" gorm:"type:timestamptz;index:idx_recording_start_time"`
	EndTime       *time.Time     `json:"endTime" gorm:"type:timestamptz;default:NULL"`
	Frequency     float32        `json:"frequency"`
	ServerAddress string         `json:"serverAddress" gorm:"size:255"`
	ServerVersion string         `json:"serverVersion" gorm:"size:64"`
	ServerAPI     string         `json:"serverApi" gorm:"size:64"`
	Profile       string         `json:"profile" gorm:"size:128"`
	Protocol      int            `json:"protocol"`
	ClientVersion string         `json:"clientVersion" gorm:"size:64"`
	Properties    datatypes.JSON `json:"properties"` // property snapshot at start
}

func (*Recording) TableName() string {
	return "recordings"
}

// BeforeCreate assigns a random id to recordings created without one.
func (r *Recording) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Tracker is a tracker definition as announced at some point of a recording
type Tracker struct {
	ID          uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	RecordingID uuid.UUID      `json:"recordingId" gorm:"type:uuid;index:idx_tracker_recording_id"`
	Recording   Recording      `json:"-" gorm:"foreignkey:RecordingID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Time        time.Time      `json:"time" gorm:"type:timestamptz;"`
	TrackerID   uint32         `json:"trackerId" gorm:"index:idx_tracker_tracker_id"`
	Type        string         `json:"type" gorm:"size:32"`
	Name        string         `json:"name" gorm:"size:128"`
	Options     string         `json:"options"`
	MarkerIDs   datatypes.JSON `json:"markerIds"`
}

func (*Tracker) TableName() string {
	return "trackers"
}

// Device is a hardware device snapshot
type Device struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	RecordingID uuid.UUID `json:"recordingId" gorm:"type:uuid;index:idx_device_recording_id"`
	Recording   Recording `json:"-" gorm:"foreignkey:RecordingID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Time        time.Time `json:"time" gorm:"type:timestamptz;"`
	HWID        string    `json:"hwid" gorm:"size:24;index:idx_device_hwid"` // hex, exceeds int64 on some hardware
	DeviceTime  int64     `json:"deviceTime"`
	Type        string    `json:"type" gorm:"size:32"`
	Name        string    `json:"name" gorm:"size:128"`
	Options     string    `json:"options"`
	Status      string    `json:"status"`
}

func (*Device) TableName() string {
	return "devices"
}

// MarkerSample is one marker position in one frame
type MarkerSample struct {
	ID          uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	RecordingID uuid.UUID  `json:"recordingId" gorm:"type:uuid;index:idx_markersample_recording_id"`
	Recording   Recording  `json:"-" gorm:"foreignkey:RecordingID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	FrameTime   int64      `json:"frameTime" gorm:"index:idx_markersample_frame_time"` // server clock
	MarkerID    uint32     `json:"markerId" gorm:"index:idx_markersample_marker_id"`
	Flags       uint32     `json:"flags"`
	Position    geom.Point `json:"position"` // XYZ in the server's units
	Cond        float32    `json:"cond"`
}

func (*MarkerSample) TableName() string {
	return "marker_samples"
}

// RigidSample is one rigid body pose in one frame
type RigidSample struct {
	ID          uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	RecordingID uuid.UUID  `json:"recordingId" gorm:"type:uuid;index:idx_rigidsample_recording_id"`
	Recording   Recording  `json:"-" gorm:"foreignkey:RecordingID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	FrameTime   int64      `json:"frameTime" gorm:"index:idx_rigidsample_frame_time"`
	RigidID     uint32     `json:"rigidId" gorm:"index:idx_rigidsample_rigid_id"`
	Flags       uint32     `json:"flags"`
	Position    geom.Point `json:"position"`
	Rotation    Quaternion `json:"rotation" gorm:"embedded;embeddedPrefix:rot_"`
	Cond        float32    `json:"cond"`
}

func (*RigidSample) TableName() string {
	return "rigid_samples"
}

// Quaternion is a rotation in wxyz order
type Quaternion struct {
	W float32 `json:"w"`
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// ServerError is an error text the server sent while recording
type ServerError struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	RecordingID uuid.UUID `json:"recordingId" gorm:"type:uuid;index:idx_servererror_recording_id"`
	Recording   Recording `json:"-" gorm:"foreignkey:RecordingID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Time        time.Time `json:"time" gorm:"type:timestamptz;"`
	FrameTime   int64     `json:"frameTime"`
	Message     string    `json:"message"`
}

func (*ServerError) TableName() string {
	return "server_errors"
}
