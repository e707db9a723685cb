package middleware

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Input validation for uploaded audio and session parameters

// MaxUploadBytes bounds a single multipart upload (32 MiB covers several
// minutes of uncompressed 16 kHz mono audio).
const MaxUploadBytes = 32 << 20

// ValidateTaskType checks the task name against the supported set
func ValidateTaskType(task string) error {
	allowed := map[string]bool{
		"breath":     true,
		"speech":     true,
		"monitoring": true,
	}

	if !allowed[strings.ToLower(task)] {
		return fmt.Errorf("invalid task_type: %s (allowed: breath, speech, monitoring)", task)
	}
	return nil
}

// ValidateAudioFilename rejects uploads outside the accepted capture formats
func ValidateAudioFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	allowed := map[string]bool{
		".wav":  true,
		".m4a":  true,
		".ogg":  true,
		".webm": true,
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !allowed[ext] {
		return fmt.Errorf("unsupported audio format: %s (allowed: .wav, .m4a, .ogg, .webm)", ext)
	}

	// block traversal and shell metacharacters in stored keys
	dangerous := []string{"..", "/", "\\", "$(", "`", "&", "|", ";", "\n", "\r"}
	for _, d := range dangerous {
		if strings.Contains(name, d) {
			return fmt.Errorf("invalid characters in filename")
		}
	}

	return nil
}

// ValidateSessionID checks a client-supplied stream session token
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session_id is required")
	}
	if len(id) > 64 {
		return fmt.Errorf("session_id too long")
	}
	for _, r := range id {
		ok := r == '-' ||
			(r >= '0' && r <= '9') ||
			(r >= 'a' && r <= 'f') ||
			(r >= 'A' && r <= 'F')
		if !ok {
			return fmt.Errorf("malformed session_id")
		}
	}
	return nil
}
