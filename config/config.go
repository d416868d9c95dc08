/*
NAME
  config.go

DESCRIPTION
  config.go contains the configuration settings for an aerialtrack run,
  grounded on revid/config/config.go's exported-struct-plus-Validate/Update
  shape.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config contains the configuration settings for aerialtrack.
package config

import (
	"fmt"
	"time"

	"github.com/ausocean/utils/logging"
)

// Output selects exactly one encoder sink.
type Output uint8

// Valid Output values.
const (
	// NothingDefined indicates no output has been selected.
	NothingDefined Output = iota
	OutputRTSP
	OutputHLS
	OutputWebRTC
	OutputMJPEG
	OutputBatch
)

// Config holds every setting an aerialtrack run needs. Zero-valued fields
// are filled in by Validate where a sensible default exists.
type Config struct {
	// InputSRT is the SRT URL the Stream Source reads from. Required.
	InputSRT string

	// SRTLatencyMS is the SRT receiver buffering latency in milliseconds.
	SRTLatencyMS uint

	// Output selects which single encoder sink is wired. Exactly one of
	// the Output* fields below is meaningful, chosen by this value.
	Output Output

	// OutputWebRTCPort and OutputMJPEGPort are the listen ports for the
	// WebRTC signalling/data endpoint and the MJPEG multipart HTTP stream,
	// respectively.
	OutputWebRTCPort uint
	OutputMJPEGPort  uint

	// BatchOutputDir is the destination directory for the batch (file) and
	// HLS output writers; when RTSP output is selected it holds the RTSP
	// destination host:port instead.
	BatchOutputDir string

	// ModelPath is the path to the detector model file. Opaque to this
	// system; passed through to the external detector.
	ModelPath string

	// ConfThreshold discards detections below this confidence.
	ConfThreshold float64

	// Classes restricts detections to this set of class IDs. Empty means
	// all classes.
	Classes []int

	// SkipFrames is the number of captured frames to skip between frames
	// delivered to inference.
	SkipFrames uint

	// FrameWidth and FrameHeight, when known ahead of time, are passed to
	// the Stream Source to avoid a probe round-trip.
	FrameWidth  uint
	FrameHeight uint

	// MetadataHost and MetadataPort address the UDP metadata sink.
	MetadataHost string
	MetadataPort uint

	// SSEPort is the listen port for the /events SSE broadcaster.
	SSEPort uint

	// ID3Interval is the number of frames between metadata injections into
	// the encoded output stream.
	ID3Interval uint

	// DetectionsDir, when non-empty, enables the disk logger under this
	// directory.
	DetectionsDir string

	// SaveCrops enables per-detection JPEG crop output alongside the JSON
	// dump in DetectionsDir.
	SaveCrops bool

	// DetectionsInterval is the minimum wall-clock time between disk
	// logger writes.
	DetectionsInterval time.Duration

	// TAKEnable turns on the Tactical Dispatcher.
	TAKEnable bool

	// TAKServerAddr is the TAK server's "host:port".
	TAKServerAddr string

	// TAKCertFile and TAKKeyFile are the client certificate and private
	// key used for the mutual-TLS TAK connection. TAKKeyPassword decrypts
	// KeyFile if it is password-protected.
	TAKCertFile    string
	TAKKeyFile     string
	TAKKeyPassword string

	// TAKInsecureSkipVerify disables TAK server certificate verification,
	// accepting self-signed servers. Default true.
	TAKInsecureSkipVerify bool

	TAKCallsign              string
	TAKUpdateInterval        time.Duration
	TAKBatchWindow           time.Duration
	TAKMaxDetectionsPerBatch uint
	TAKStaleSeconds          uint

	// Logger is used throughout the pipeline. Must be set before Validate
	// is called.
	Logger logging.Logger

	// LogLevel is the logging verbosity level: logging.Debug, logging.Info,
	// logging.Warning, logging.Error, or logging.Fatal.
	LogLevel int8
}

// Validate checks for errors in the config fields and defaults settings
// where particular parameters have not been defined. Validate requires
// Logger to already be set.
func (c *Config) Validate() error {
	if c.InputSRT == "" {
		return fmt.Errorf("config: InputSRT is required")
	}
	if c.Output == NothingDefined {
		return fmt.Errorf("config: exactly one output must be selected")
	}
	if c.Output == OutputBatch && c.BatchOutputDir == "" {
		return fmt.Errorf("config: BatchOutputDir is required for batch output")
	}
	if c.DetectionsDir != "" && c.DetectionsInterval <= 0 {
		c.DetectionsInterval = defaultDetectionsInterval
	}

	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(c)
		}
	}
	return nil
}

// Update takes a map of configuration variable names to their string
// values, parses them, and sets the corresponding Config fields.
func (c *Config) Update(vars map[string]string) {
	for _, value := range Variables {
		if v, ok := vars[value.Name]; ok && value.Update != nil {
			value.Update(c, v)
		}
	}
}

// LogInvalidField logs that name was bad or unset and that def is being
// used in its place.
func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}
