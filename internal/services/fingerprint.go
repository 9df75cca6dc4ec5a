package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mediavault/link-engine/internal/models"
)

// Sentinel values for missing fingerprint signals. A scripted client
// that omits collection degrades to these instead of failing the request.
const (
	SignalUnknown     = "unknown"
	SignalUnavailable = "unavailable"
)

// Fingerprint confidence levels
const (
	ConfidenceFull        = "full"
	ConfidencePartial     = "partial"
	ConfidenceUnavailable = "unavailable"
)

// ClusterThreshold is the similarity at or above which two fingerprints
// are flagged as the same physical device. Only an exact hardware-hash
// match reaches it; soft-signal overlap stays strictly below.
const ClusterThreshold = 0.9

// Signals is the client-collected fingerprint payload. Each probe runs
// independently on the client; a probe that failed or never ran arrives
// empty and is defaulted here rather than rejected.
type Signals struct {
	ScreenResolution    string `json:"fp_screen_resolution" form:"fp_screen_resolution"`
	TimezoneName        string `json:"fp_timezone_name" form:"fp_timezone_name"`
	Language            string `json:"fp_language" form:"fp_language"`
	CanvasFingerprint   string `json:"fp_canvas_fingerprint" form:"fp_canvas_fingerprint"`
	WebGLVendor         string `json:"fp_webgl_vendor" form:"fp_webgl_vendor"`
	WebGLRenderer       string `json:"fp_webgl_renderer" form:"fp_webgl_renderer"`
	InstalledFonts      string `json:"fp_installed_fonts" form:"fp_installed_fonts"`
	Plugins             string `json:"fp_plugins" form:"fp_plugins"`
	Platform            string `json:"fp_platform" form:"fp_platform"`
	HardwareConcurrency int    `json:"fp_hardware_concurrency" form:"fp_hardware_concurrency"`
	DeviceMemory        int    `json:"fp_device_memory" form:"fp_device_memory"`
	TouchSupport        bool   `json:"fp_touch_support" form:"fp_touch_support"`
	UserAgent           string `json:"fp_user_agent" form:"fp_user_agent"`
}

// Fingerprint is the resolved device identity. HardwareHash covers only
// signals stable across reinstalls and network changes and drives
// clustering; CompositeHash folds in the volatile soft signals.
type Fingerprint struct {
	CompositeHash string
	HardwareHash  string
	Confidence    string
	Signals       Signals
}

// HardwareAvailable reports whether the hardware hash carries real
// signal. Two unavailable hashes must never be treated as a match.
func (f *Fingerprint) HardwareAvailable() bool {
	return f.HardwareHash != SignalUnavailable
}

// FingerprintStore persists fingerprints and their sightings
type FingerprintStore interface {
	Upsert(ctx context.Context, fp *models.DeviceFingerprint) error
	RecordObservation(ctx context.Context, obs *models.FingerprintObservation) error
	Clusters(ctx context.Context, since time.Time, unavailable string, limit int) ([]models.FingerprintCluster, error)
}

// FingerprintService resolves device identities from client signals
type FingerprintService struct {
	store FingerprintStore
}

// NewFingerprintService creates a new fingerprint service
func NewFingerprintService(store FingerprintStore) *FingerprintService {
	return &FingerprintService{store: store}
}

func defaultStr(v string) string {
	if strings.TrimSpace(v) == "" {
		return SignalUnknown
	}
	return strings.TrimSpace(v)
}

// Normalize fills missing signals with their sentinels and reports how
// many were missing
func (s Signals) normalize() (Signals, int) {
	missing := 0
	norm := s

	strFields := []*string{
		&norm.ScreenResolution, &norm.TimezoneName, &norm.Language,
		&norm.CanvasFingerprint, &norm.WebGLVendor, &norm.WebGLRenderer,
		&norm.InstalledFonts, &norm.Plugins, &norm.Platform, &norm.UserAgent,
	}
	for _, f := range strFields {
		if strings.TrimSpace(*f) == "" {
			*f = SignalUnknown
			missing++
		} else {
			*f = strings.TrimSpace(*f)
		}
	}
	if norm.HardwareConcurrency == 0 {
		missing++
	}
	if norm.DeviceMemory == 0 {
		missing++
	}
	return norm, missing
}

// hardwareMissing reports whether none of the durable hardware signals
// were collected
func (s Signals) hardwareMissing() bool {
	return defaultStr(s.ScreenResolution) == SignalUnknown &&
		defaultStr(s.WebGLVendor) == SignalUnknown &&
		defaultStr(s.WebGLRenderer) == SignalUnknown &&
		defaultStr(s.Platform) == SignalUnknown &&
		s.HardwareConcurrency == 0 &&
		s.DeviceMemory == 0
}

// Resolve produces a deterministic fingerprint from the canonicalized
// signal tuple. It never fails: missing signals degrade the confidence
// and, when every hardware signal is absent, the hardware hash becomes
// the unavailable sentinel so omission cannot defeat clustering.
func Resolve(signals Signals) Fingerprint {
	hardwareMissing := signals.hardwareMissing()
	norm, missing := signals.normalize()

	hardwareTuple := strings.Join([]string{
		"screen=" + norm.ScreenResolution,
		"cores=" + strconv.Itoa(norm.HardwareConcurrency),
		"memory=" + strconv.Itoa(norm.DeviceMemory),
		"webgl_vendor=" + norm.WebGLVendor,
		"webgl_renderer=" + norm.WebGLRenderer,
		"platform=" + norm.Platform,
		"touch=" + strconv.FormatBool(norm.TouchSupport),
	}, "|")

	compositeTuple := strings.Join([]string{
		hardwareTuple,
		"timezone=" + norm.TimezoneName,
		"language=" + norm.Language,
		"fonts=" + norm.InstalledFonts,
		"canvas=" + norm.CanvasFingerprint,
		"plugins=" + norm.Plugins,
		"ua=" + norm.UserAgent,
	}, "|")

	fp := Fingerprint{
		CompositeHash: hashTuple(compositeTuple),
		HardwareHash:  hashTuple(hardwareTuple),
		Confidence:    ConfidenceFull,
		Signals:       norm,
	}

	if hardwareMissing {
		fp.HardwareHash = SignalUnavailable
		fp.Confidence = ConfidenceUnavailable
	} else if missing > 0 {
		fp.Confidence = ConfidencePartial
	}
	return fp
}

func hashTuple(tuple string) string {
	sum := sha256.Sum256([]byte(tuple))
	return hex.EncodeToString(sum[:])
}

// MergeHeaders fills signals the client payload did not carry from
// server-side request headers, which cannot be manipulated as freely
func MergeHeaders(signals Signals, headers http.Header) Signals {
	if strings.TrimSpace(signals.UserAgent) == "" {
		signals.UserAgent = headers.Get("User-Agent")
	}
	if strings.TrimSpace(signals.Language) == "" {
		signals.Language = headers.Get("Accept-Language")
	}
	if strings.TrimSpace(signals.Platform) == "" {
		signals.Platform = strings.Trim(headers.Get("Sec-CH-UA-Platform"), `"`)
	}
	return signals
}

// ClusterScore compares two fingerprints. An exact hardware-hash match
// is the primary signal and scores 1.0; soft-signal overlap contributes
// a secondary score that never reaches ClusterThreshold, so it can only
// ever produce an advisory flag.
func ClusterScore(a, b Fingerprint) float64 {
	if a.HardwareAvailable() && b.HardwareAvailable() && a.HardwareHash == b.HardwareHash {
		return 1.0
	}

	score := 0.0
	if a.Signals.ScreenResolution != SignalUnknown && a.Signals.ScreenResolution == b.Signals.ScreenResolution {
		score += 0.25
	}
	if a.Signals.TimezoneName != SignalUnknown && a.Signals.TimezoneName == b.Signals.TimezoneName {
		score += 0.2
	}
	if a.Signals.Language != SignalUnknown && a.Signals.Language == b.Signals.Language {
		score += 0.15
	}
	if a.Signals.UserAgent != SignalUnknown && a.Signals.UserAgent == b.Signals.UserAgent {
		score += 0.2
	}
	return score
}

// Observe resolves and records one device sighting. Storage errors are
// returned but the fingerprint is always produced; callers treat a
// failed observation as degraded, not fatal.
func (s *FingerprintService) Observe(ctx context.Context, deviceID, accountID, clientIP string, signals Signals) (Fingerprint, error) {
	fp := Resolve(signals)

	record := &models.DeviceFingerprint{
		DeviceID:          deviceID,
		HardwareSignature: fp.HardwareHash,
		CompositeHash:     fp.CompositeHash,
		Confidence:        fp.Confidence,
		ScreenResolution:  fp.Signals.ScreenResolution,
		TimezoneName:      fp.Signals.TimezoneName,
		Language:          fp.Signals.Language,
		UserAgent:         fp.Signals.UserAgent,
	}
	if err := s.store.Upsert(ctx, record); err != nil {
		return fp, fmt.Errorf("failed to store fingerprint: %w", err)
	}

	obs := &models.FingerprintObservation{
		DeviceID:          deviceID,
		AccountID:         accountID,
		IPAddress:         clientIP,
		HardwareSignature: fp.HardwareHash,
	}
	if err := s.store.RecordObservation(ctx, obs); err != nil {
		return fp, fmt.Errorf("failed to record observation: %w", err)
	}
	return fp, nil
}

// Clusters returns the advisory multi-account report: hardware
// signatures seen from more than one account across more than one IP
func (s *FingerprintService) Clusters(ctx context.Context, lookback time.Duration, limit int) ([]models.FingerprintCluster, error) {
	if limit <= 0 {
		limit = 20
	}
	since := time.Now().Add(-lookback)
	return s.store.Clusters(ctx, since, SignalUnavailable, limit)
}
