/*
NAME
  main.go

DESCRIPTION
  main.go is the aerialtrack entry point: it parses the CLI flags described
  in spec.md §6 into a config.Config, wires the Stream Source, Pipeline
  Orchestrator, Sink Fan-out, Tactical Dispatcher, and SSE Broadcaster
  together, and runs until interrupted, grounded on cmd/rv/main.go's
  flag-parse/lumberjack-log/construct-and-run shape.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/aerialtrack/config"
	"github.com/ausocean/aerialtrack/internal/detect"
	"github.com/ausocean/aerialtrack/internal/overlay"
	"github.com/ausocean/aerialtrack/internal/pipeline"
	"github.com/ausocean/aerialtrack/internal/sink"
	"github.com/ausocean/aerialtrack/internal/source"
	"github.com/ausocean/aerialtrack/internal/sse"
	"github.com/ausocean/aerialtrack/internal/tak"
	"github.com/ausocean/aerialtrack/internal/writer"
)

const (
	logPath      = "/var/log/aerialtrack/aerialtrack.log"
	logMaxSize   = 100 // MB
	logMaxBackup = 5
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = false

	pkg = "main: "
)

func main() {
	vars, extra, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	log := logging.New(logVerbosity, fileLog, logSuppress)

	cfg := &config.Config{Logger: log}
	cfg.Update(vars)
	extra.apply(cfg)

	if err := cfg.Validate(); err != nil {
		log.Error(pkg+"invalid configuration", "error", err.Error())
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error(pkg+"fatal error", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logging.Logger) error {
	log.Info(pkg + "starting aerialtrack")

	detector, err := detect.Open(cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("could not open detector: %w", err)
	}

	enc, err := newEncoder(cfg, log)
	if err != nil {
		return fmt.Errorf("could not create output writer: %w", err)
	}
	defer enc.Close()

	var udp *sink.UDPSender
	if cfg.MetadataHost != "" {
		udp = sink.NewUDPSender(fmt.Sprintf("%s:%d", cfg.MetadataHost, cfg.MetadataPort), log)
		defer udp.Close()
	}

	broadcaster := sse.NewBroadcaster()
	go func() {
		addr := fmt.Sprintf(":%d", cfg.SSEPort)
		if err := sse.ListenAndServe(addr, broadcaster); err != nil {
			log.Error(pkg+"sse server stopped", "error", err.Error())
		}
	}()

	var disk *sink.DiskLogger
	if cfg.DetectionsDir != "" {
		disk = sink.NewDiskLogger(cfg.DetectionsDir, cfg.DetectionsInterval, cfg.SaveCrops, log)
	}

	fanout := sink.New(log, enc, udp, broadcaster, disk, cfg.ID3Interval)

	var dispatcher pipeline.Dispatcher
	if cfg.TAKEnable {
		d := tak.New(tak.Config{
			ServerAddr:            cfg.TAKServerAddr,
			CertFile:              cfg.TAKCertFile,
			KeyFile:               cfg.TAKKeyFile,
			KeyPassword:           cfg.TAKKeyPassword,
			InsecureSkipVerify:    cfg.TAKInsecureSkipVerify,
			UpdateInterval:        cfg.TAKUpdateInterval,
			BatchWindow:           cfg.TAKBatchWindow,
			MaxDetectionsPerBatch: int(cfg.TAKMaxDetectionsPerBatch),
			StaleSeconds:          int(cfg.TAKStaleSeconds),
			Callsign:              cfg.TAKCallsign,
		}, log)
		d.Start()
		defer d.Stop()
		dispatcher = d
	}

	stream := source.NewStream(source.Config{
		URL:    srtURLWithLatency(cfg.InputSRT, cfg.SRTLatencyMS),
		Width:  int(cfg.FrameWidth),
		Height: int(cfg.FrameHeight),
	}, log)

	mode := pipeline.Batch
	if cfg.Output != config.OutputBatch {
		mode = pipeline.Live
	}

	p := pipeline.New(pipeline.Config{
		Mode:          mode,
		SkipFrames:    int(cfg.SkipFrames),
		ConfThreshold: cfg.ConfThreshold,
		Classes:       cfg.Classes,
		FrameWidth:    float64(cfg.FrameWidth),
		FrameHeight:   float64(cfg.FrameHeight),
	}, log, stream, detector, overlay.NewBasic(), fanout, dispatcher)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return p.Run(ctx)
}

// closableEncoder is a sink.Encoder that also owns a resource (file, socket,
// HTTP server) main must release on shutdown; every internal/writer type
// satisfies it.
type closableEncoder interface {
	sink.Encoder
	Close() error
}

func newEncoder(cfg *config.Config, log logging.Logger) (closableEncoder, error) {
	fps := 25
	switch cfg.Output {
	case config.OutputRTSP:
		return writer.NewRTSPWriter(cfg.BatchOutputDir, fps, log)
	case config.OutputHLS:
		return writer.NewHLSWriter(cfg.BatchOutputDir, fps, log)
	case config.OutputMJPEG:
		return writer.NewMJPEGWriter(fmt.Sprintf(":%d", cfg.OutputMJPEGPort), log), nil
	case config.OutputWebRTC:
		return writer.NewWebRTCWriter(fmt.Sprintf(":%d", cfg.OutputWebRTCPort), fps, log)
	case config.OutputBatch:
		return writer.NewBatchWriter(cfg.BatchOutputDir, fps, log)
	default:
		return nil, fmt.Errorf("no output selected")
	}
}

// extraFlags holds the CLI surface outside config.Variables: output
// selection, the save-crops and tak-enable switches, and the frame
// width/height, all copied into config.Config by apply.
type extraFlags struct {
	outputRTSP   string
	outputFormat string
	outputWebRTC uint
	outputMJPEG  uint
	batchOutput  string
	saveCrops    bool
	takEnable    bool
	frameWidth   uint
	frameHeight  uint
}

// apply resolves the output selector and copies the remaining extra flags
// into cfg. cfg.Validate has not run yet, so this only sets raw values.
func (e extraFlags) apply(cfg *config.Config) {
	cfg.SaveCrops = e.saveCrops
	cfg.TAKEnable = e.takEnable
	cfg.TAKInsecureSkipVerify = true
	cfg.OutputWebRTCPort = e.outputWebRTC
	cfg.OutputMJPEGPort = e.outputMJPEG
	cfg.BatchOutputDir = e.batchOutput
	cfg.FrameWidth = e.frameWidth
	cfg.FrameHeight = e.frameHeight

	switch {
	case e.outputRTSP != "":
		cfg.Output = config.OutputRTSP
		cfg.BatchOutputDir = e.outputRTSP
	case e.outputFormat == "hls":
		cfg.Output = config.OutputHLS
	case e.outputWebRTC != 0:
		cfg.Output = config.OutputWebRTC
	case e.outputMJPEG != 0:
		cfg.Output = config.OutputMJPEG
	case e.batchOutput != "":
		cfg.Output = config.OutputBatch
	}
}

// parseFlags parses the CLI flags named in spec.md §6. Fields covered by
// config.Variables feed cfg.Update via vars, the same way revid.go feeds
// its Config.Update from netsender's variable map; the handful of flags
// Variables doesn't know about (output selection, save-crops, tak-enable,
// frame dimensions) are
// returned separately in an extraFlags for apply to copy directly.
func parseFlags() (vars map[string]string, extra extraFlags, err error) {
	inputSRT := flag.String(config.KeyInputSRT, "", "SRT input URL (required)")
	srtLatency := flag.String(config.KeySRTLatencyMS, "", "SRT receiver latency in milliseconds")
	model := flag.String(config.KeyModelPath, "", "detector model path")
	conf := flag.String(config.KeyConfThreshold, "", "detection confidence threshold")
	classes := flag.String(config.KeyClasses, "", "comma-separated class IDs to keep; empty means all")
	skipFrames := flag.String(config.KeySkipFrames, "", "number of captured frames to skip between inference calls")
	metadataHost := flag.String(config.KeyMetadataHost, "", "UDP metadata sink host")
	metadataPort := flag.String(config.KeyMetadataPort, "", "UDP metadata sink port")
	ssePort := flag.String(config.KeySSEPort, "", "SSE broadcaster listen port")
	id3Interval := flag.String(config.KeyID3Interval, "", "frames between metadata injections into the encoded stream")
	detectionsDir := flag.String(config.KeyDetectionsDir, "", "directory for the disk logger; empty disables it")
	takServer := flag.String(config.KeyTAKServerAddr, "", "TAK server host:port")
	takCert := flag.String(config.KeyTAKCertFile, "", "TAK client certificate path")
	takKey := flag.String(config.KeyTAKKeyFile, "", "TAK client private key path")
	takKeyPassword := flag.String(config.KeyTAKKeyPassword, "", "TAK client private key password")
	takCallsign := flag.String(config.KeyTAKCallsign, "", "CoT contact callsign")
	takUpdateInterval := flag.String(config.KeyTAKUpdateInterval, "", "minimum seconds between TAK sends for the same track ID")
	takBatchWindow := flag.String(config.KeyTAKBatchWindow, "", "seconds a detection is held open for batching")
	takMaxDetections := flag.String(config.KeyTAKMaxDetectionsPerBatch, "", "max detections per TAK CoT batch")
	takStaleSeconds := flag.String(config.KeyTAKStaleSeconds, "", "seconds before a stale TAK track is dropped")

	outputRTSP := flag.String("output-rtsp", "", "RTSP (MPEG-TS over RTP) output destination, host:port")
	outputFormat := flag.String("output-format", "", `output format; only "hls" is meaningful here`)
	outputWebRTC := flag.Uint("output-webrtc", 0, "WebRTC signalling port")
	outputMJPEG := flag.Uint("output-mjpeg", 0, "MJPEG multipart HTTP port")
	batchOutput := flag.String("batch-output", "", "batch/HLS output directory")
	saveCrops := flag.Bool("save-crops", false, "save per-detection JPEG crops in detections-dir")
	takEnable := flag.Bool("tak-enable", false, "enable the Tactical Dispatcher")
	frameWidth := flag.Uint("frame-width", 0, "known frame width in pixels, passed to the Stream Source in place of the probed width")
	frameHeight := flag.Uint("frame-height", 0, "known frame height in pixels, passed to the Stream Source in place of the probed height")
	flag.Parse()

	given := map[string]string{
		config.KeyInputSRT:                *inputSRT,
		config.KeySRTLatencyMS:            *srtLatency,
		config.KeyModelPath:               *model,
		config.KeyConfThreshold:           *conf,
		config.KeyClasses:                 *classes,
		config.KeySkipFrames:              *skipFrames,
		config.KeyMetadataHost:            *metadataHost,
		config.KeyMetadataPort:            *metadataPort,
		config.KeySSEPort:                 *ssePort,
		config.KeyID3Interval:             *id3Interval,
		config.KeyDetectionsDir:           *detectionsDir,
		config.KeyTAKServerAddr:           *takServer,
		config.KeyTAKCertFile:             *takCert,
		config.KeyTAKKeyFile:              *takKey,
		config.KeyTAKKeyPassword:          *takKeyPassword,
		config.KeyTAKCallsign:             *takCallsign,
		config.KeyTAKUpdateInterval:       *takUpdateInterval,
		config.KeyTAKBatchWindow:          *takBatchWindow,
		config.KeyTAKMaxDetectionsPerBatch: *takMaxDetections,
		config.KeyTAKStaleSeconds:         *takStaleSeconds,
	}
	vars = make(map[string]string, len(given))
	for k, v := range given {
		if v != "" {
			vars[k] = v
		}
	}

	extra = extraFlags{
		outputRTSP:   *outputRTSP,
		outputFormat: *outputFormat,
		outputWebRTC: *outputWebRTC,
		outputMJPEG:  *outputMJPEG,
		batchOutput:  *batchOutput,
		saveCrops:    *saveCrops,
		takEnable:    *takEnable,
		frameWidth:   *frameWidth,
		frameHeight:  *frameHeight,
	}

	selected := 0
	if *outputRTSP != "" {
		selected++
	}
	if *outputFormat == "hls" {
		selected++
	}
	if *outputWebRTC != 0 {
		selected++
	}
	if *outputMJPEG != 0 {
		selected++
	}
	if *batchOutput != "" && *outputFormat != "hls" && *outputRTSP == "" {
		selected++
	}
	if selected != 1 {
		return nil, extraFlags{}, fmt.Errorf("exactly one output selector is required (got %d)", selected)
	}

	return vars, extra, nil
}

// srtURLWithLatency appends ffmpeg's native SRT "latency" query parameter
// (microseconds) to url if it is an srt:// URL and doesn't already carry
// one, so the SRT receiver buffers as configured without source.Stream
// needing to know about SRT-specific URL schemes.
func srtURLWithLatency(url string, latencyMS uint) string {
	if !strings.HasPrefix(url, "srt://") || strings.Contains(url, "latency=") {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%slatency=%d", url, sep, latencyMS*1000)
}
