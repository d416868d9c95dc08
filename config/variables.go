/*
NAME
  variables.go

DESCRIPTION
  variables.go contains a list of structs that provide a variable Name, type
  in a string format, a function for updating the variable in the Config
  struct from a string, and a validation function to check the validity of
  the corresponding field value, grounded on revid/config/variables.go.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config map keys, matching the CLI flag names (without the leading "--").
const (
	KeyInputSRT                = "input-srt"
	KeySRTLatencyMS             = "srt-latency"
	KeyModelPath                = "model"
	KeyConfThreshold            = "conf"
	KeyClasses                  = "classes"
	KeySkipFrames               = "skip-frames"
	KeyMetadataHost             = "metadata-host"
	KeyMetadataPort             = "metadata-port"
	KeySSEPort                  = "sse-port"
	KeyID3Interval              = "id3-interval"
	KeyDetectionsDir            = "detections-dir"
	KeyTAKServerAddr            = "tak-server"
	KeyTAKCertFile              = "tak-cert"
	KeyTAKKeyFile               = "tak-key"
	KeyTAKKeyPassword           = "tak-key-password"
	KeyTAKCallsign              = "tak-callsign"
	KeyTAKUpdateInterval        = "tak-update-interval"
	KeyTAKBatchWindow           = "tak-batch-window"
	KeyTAKMaxDetectionsPerBatch = "tak-max-detections"
	KeyTAKStaleSeconds          = "tak-stale-seconds"
)

// Config map parameter types.
const (
	typeString = "string"
	typeUint   = "uint"
	typeFloat  = "float"
	typeIntCSV = "int-csv"
)

// Default variable values.
const (
	defaultSRTLatencyMS             = 120
	defaultConfThreshold             = 0.25
	defaultSkipFrames                = 0
	defaultMetadataPort              = 8600
	defaultSSEPort                   = 8700
	defaultID3Interval               = 1
	defaultTAKUpdateInterval         = 3 * time.Second
	defaultTAKBatchWindow            = 5 * time.Second
	defaultTAKMaxDetectionsPerBatch  = 5
	defaultTAKStaleSeconds           = 60
	defaultDetectionsInterval        = time.Second
)

// Variables describes the CLI-controllable settings of a Config. Each entry
// provides the flag name and type, a function to update the matching Config
// field from a string, and an optional function to validate/default that
// field after all Update calls have been applied.
var Variables = []struct {
	Name     string
	Type     string
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name:   KeyInputSRT,
		Type:   typeString,
		Update: func(c *Config, v string) { c.InputSRT = v },
	},
	{
		Name:   KeySRTLatencyMS,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.SRTLatencyMS = parseUint(KeySRTLatencyMS, v, c) },
		Validate: func(c *Config) {
			if c.SRTLatencyMS == 0 {
				c.LogInvalidField(KeySRTLatencyMS, defaultSRTLatencyMS)
				c.SRTLatencyMS = defaultSRTLatencyMS
			}
		},
	},
	{
		Name:   KeyModelPath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.ModelPath = v },
	},
	{
		Name: KeyConfThreshold,
		Type: typeFloat,
		Update: func(c *Config, v string) {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				c.Logger.Warning(fmt.Sprintf("expected float for param %s", KeyConfThreshold), "value", v)
				return
			}
			c.ConfThreshold = f
		},
		Validate: func(c *Config) {
			if c.ConfThreshold <= 0 {
				c.LogInvalidField(KeyConfThreshold, defaultConfThreshold)
				c.ConfThreshold = defaultConfThreshold
			}
		},
	},
	{
		Name: KeyClasses,
		Type: typeIntCSV,
		Update: func(c *Config, v string) {
			v = strings.ReplaceAll(v, " ", "")
			if v == "" {
				c.Classes = nil
				return
			}
			var classes []int
			for _, e := range strings.Split(v, ",") {
				n, err := strconv.Atoi(e)
				if err != nil {
					c.Logger.Warning("invalid classes entry", "value", e)
					continue
				}
				classes = append(classes, n)
			}
			c.Classes = classes
		},
	},
	{
		Name:   KeySkipFrames,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.SkipFrames = parseUint(KeySkipFrames, v, c) },
	},
	{
		Name:   KeyMetadataHost,
		Type:   typeString,
		Update: func(c *Config, v string) { c.MetadataHost = v },
	},
	{
		Name:   KeyMetadataPort,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.MetadataPort = parseUint(KeyMetadataPort, v, c) },
		Validate: func(c *Config) {
			if c.MetadataPort == 0 {
				c.LogInvalidField(KeyMetadataPort, defaultMetadataPort)
				c.MetadataPort = defaultMetadataPort
			}
		},
	},
	{
		Name:   KeySSEPort,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.SSEPort = parseUint(KeySSEPort, v, c) },
		Validate: func(c *Config) {
			if c.SSEPort == 0 {
				c.LogInvalidField(KeySSEPort, defaultSSEPort)
				c.SSEPort = defaultSSEPort
			}
		},
	},
	{
		Name:   KeyID3Interval,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.ID3Interval = parseUint(KeyID3Interval, v, c) },
		Validate: func(c *Config) {
			if c.ID3Interval == 0 {
				c.LogInvalidField(KeyID3Interval, defaultID3Interval)
				c.ID3Interval = defaultID3Interval
			}
		},
	},
	{
		Name:   KeyDetectionsDir,
		Type:   typeString,
		Update: func(c *Config, v string) { c.DetectionsDir = v },
	},
	{
		Name:   KeyTAKServerAddr,
		Type:   typeString,
		Update: func(c *Config, v string) { c.TAKServerAddr = v },
		Validate: func(c *Config) {
			if c.TAKEnable && c.TAKServerAddr == "" {
				c.Logger.Warning("tak-enable set but tak-server is empty; disabling tactical dispatch")
				c.TAKEnable = false
			}
		},
	},
	{
		Name:   KeyTAKCertFile,
		Type:   typeString,
		Update: func(c *Config, v string) { c.TAKCertFile = v },
	},
	{
		Name:   KeyTAKKeyFile,
		Type:   typeString,
		Update: func(c *Config, v string) { c.TAKKeyFile = v },
	},
	{
		Name:   KeyTAKKeyPassword,
		Type:   typeString,
		Update: func(c *Config, v string) { c.TAKKeyPassword = v },
	},
	{
		Name:   KeyTAKCallsign,
		Type:   typeString,
		Update: func(c *Config, v string) { c.TAKCallsign = v },
		Validate: func(c *Config) {
			if c.TAKEnable && c.TAKCallsign == "" {
				c.LogInvalidField(KeyTAKCallsign, "aerialtrack")
				c.TAKCallsign = "aerialtrack"
			}
		},
	},
	{
		Name: KeyTAKUpdateInterval,
		Type: typeUint,
		Update: func(c *Config, v string) {
			c.TAKUpdateInterval = time.Duration(parseUint(KeyTAKUpdateInterval, v, c)) * time.Second
		},
		Validate: func(c *Config) {
			if c.TAKUpdateInterval <= 0 {
				c.LogInvalidField(KeyTAKUpdateInterval, defaultTAKUpdateInterval)
				c.TAKUpdateInterval = defaultTAKUpdateInterval
			}
		},
	},
	{
		Name: KeyTAKBatchWindow,
		Type: typeUint,
		Update: func(c *Config, v string) {
			c.TAKBatchWindow = time.Duration(parseUint(KeyTAKBatchWindow, v, c)) * time.Second
		},
		Validate: func(c *Config) {
			if c.TAKBatchWindow <= 0 {
				c.LogInvalidField(KeyTAKBatchWindow, defaultTAKBatchWindow)
				c.TAKBatchWindow = defaultTAKBatchWindow
			}
		},
	},
	{
		Name:   KeyTAKMaxDetectionsPerBatch,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.TAKMaxDetectionsPerBatch = parseUint(KeyTAKMaxDetectionsPerBatch, v, c) },
		Validate: func(c *Config) {
			if c.TAKMaxDetectionsPerBatch == 0 {
				c.LogInvalidField(KeyTAKMaxDetectionsPerBatch, defaultTAKMaxDetectionsPerBatch)
				c.TAKMaxDetectionsPerBatch = defaultTAKMaxDetectionsPerBatch
			}
		},
	},
	{
		Name:   KeyTAKStaleSeconds,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.TAKStaleSeconds = parseUint(KeyTAKStaleSeconds, v, c) },
		Validate: func(c *Config) {
			if c.TAKStaleSeconds == 0 {
				c.LogInvalidField(KeyTAKStaleSeconds, defaultTAKStaleSeconds)
				c.TAKStaleSeconds = defaultTAKStaleSeconds
			}
		},
	},
}

func parseUint(n, v string, c *Config) uint {
	_v, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected unsigned int for param %s", n), "value", v)
	}
	return uint(_v)
}
