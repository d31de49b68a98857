package helper

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	kibibyte = 1024
	mebibyte = kibibyte * 1024
)

// GenerateUUID creates a random unique UUID string
func GenerateUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %w", err)
	}
	return id.String(), nil
}

// FormatFileSize renders a byte count in KB below one MiB and in MB otherwise.
func FormatFileSize(bytes int64) string {
	if bytes < mebibyte {
		return fmt.Sprintf("%.2f KB", float64(bytes)/kibibyte)
	}
	return fmt.Sprintf("%.2f MB", float64(bytes)/mebibyte)
}

// pretty print
func PrettyPrint(w io.Writer, v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Error pretty printing")
		return
	}
	fmt.Fprintln(w, string(b))
}

// create folder if it does not exist
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return nil
}
