package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RegisterPath creates a publisher path on a MediaMTX server before the
// encoder starts pushing to it. Failure is returned for the caller to log;
// streaming proceeds regardless since the path may already exist.
func RegisterPath(apiBase, pathName string) error {
	url := fmt.Sprintf("%s/v3/config/paths/add/%s", apiBase, pathName)
	body, _ := json.Marshal(map[string]string{
		"source":         "publisher",
		"sourceProtocol": "rtsp",
	})

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("registering mediamtx path %s: %w", pathName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mediamtx path registration returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}
