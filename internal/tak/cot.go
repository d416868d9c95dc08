package tak

import (
	"fmt"
	"strconv"
	"time"
)

const cotTimeLayout = "2006-01-02T15:04:05.000000Z"

// callsignFor composes a per-detection tactical callsign so that distinct
// contacts are distinguishable in a TAK client, following the
// class/track/confidence naming convention of this system's source tooling
// (class_ID<track>_<confidence%>), prefixed with the configured operator
// callsign.
func callsignFor(cfg Config, s submission) string {
	id := s.trackID
	if id == "" {
		id = strconv.FormatUint(s.frame, 10)
	}
	return fmt.Sprintf("%s_%s_ID%s_%.0f%%", cfg.Callsign, s.class, id, s.confidence*100)
}

// renderCoT builds the Cursor-on-Target XML message for one submission.
func renderCoT(cfg Config, s submission, now time.Time) string {
	t := now.UTC().Format(cotTimeLayout)
	stale := now.UTC().Add(time.Duration(cfg.StaleSeconds) * time.Second).Format(cotTimeLayout)

	cotType := "a-n-G-U-C"
	if isHostile(s.class) {
		cotType = "a-h-G-U-C"
	}

	verb := "Detected"
	if s.trackID != "" {
		verb = "Tracked"
	}

	remarks := fmt.Sprintf(
		"%s: %s | Distance: %.0fm | Camera: Az=%.1f° El=%.1f° | Conf=%.1f%%",
		verb, s.class, s.coords.EstimatedGroundDistanceM,
		s.coords.CameraAzimuthDeg, s.coords.CameraElevationDeg, s.confidence*100,
	)

	callsign := callsignFor(cfg, s)

	return fmt.Sprintf(
		`<event version="2.0" uid="%s" type="%s" time="%s" start="%s" stale="%s" how="m-g">`+
			`<point lat="%.6f" lon="%.6f" hae="%.1f" ce="10.0" le="10.0"/>`+
			`<detail>`+
			`<contact callsign="%s" endpoint="*:-1:stcp"/>`+
			`<uid Droid="%s"/>`+
			`<__group name="Yellow" role="Team Member"/>`+
			`<status battery="100"/>`+
			`<takv device="YOLO Detection" platform="aerialtrack" os="Linux" version="1.0"/>`+
			`<track speed="0.0" course="%.1f"/>`+
			`<remarks>%s</remarks>`+
			`<precisionlocation altsrc="DTED0" geopointsrc="Photogrammetry"/>`+
			`</detail>`+
			`</event>`,
		uidFor(s), cotType, t, t, stale,
		s.coords.Latitude, s.coords.Longitude, 0.0,
		callsign, callsign,
		s.coords.CameraAzimuthDeg,
		remarks,
	)
}
