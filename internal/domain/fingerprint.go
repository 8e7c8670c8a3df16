package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// ServerFingerprintInput is the header-derived signal bundle hashed into a
// server-side visitor fingerprint.
type ServerFingerprintInput struct {
	ForwardedFor   string
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	Accept         string
}

// ServerFingerprint derives a coarse per-visitor fingerprint from request
// headers and the current UTC hour bucket. Including the hour bucket rotates
// the print hourly; the trade-off is some false-negative matching in exchange
// for not tracking an IP/UA pair indefinitely. Collisions across distinct
// visitors are expected and acceptable.
func ServerFingerprint(in ServerFingerprintInput, now time.Time) string {
	parts := []string{
		NormalizeIP(in.ForwardedFor),
		in.UserAgent,
		in.AcceptLanguage,
		in.AcceptEncoding,
		in.Accept,
		now.UTC().Format("2006010215"),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "srv_" + hex.EncodeToString(sum[:])[:16]
}

// ClientEntropy is the browser signal bundle a tracking script reports.
// The canvas/webgl/audio fields are already rendered hashes on the client;
// the service only canonicalizes the bundle and hashes it.
type ClientEntropy struct {
	ScreenResolution    string   `json:"screen_resolution"`
	Timezone            string   `json:"timezone"`
	Language            string   `json:"language"`
	HardwareConcurrency int      `json:"hardware_concurrency"`
	CanvasHash          string   `json:"canvas_hash"`
	WebGLHash           string   `json:"webgl_hash"`
	AudioHash           string   `json:"audio_hash"`
	Fonts               []string `json:"fonts"`
	Plugins             []string `json:"plugins"`
}

// ClientFingerprint hashes a client entropy bundle with SHA-256. It is used
// for client-side correlation only and is not required to match the
// server-side variant for the same visitor.
func ClientFingerprint(e ClientEntropy) string {
	parts := []string{
		e.ScreenResolution,
		e.Timezone,
		e.Language,
		strconv.Itoa(e.HardwareConcurrency),
		e.CanvasHash,
		e.WebGLHash,
		e.AudioHash,
		strings.Join(e.Fonts, ","),
		strings.Join(e.Plugins, ","),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
