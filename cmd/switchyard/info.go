package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// serverInfo mirrors the GET /info response body.
type serverInfo struct {
	Version     string   `json:"version"`
	Strategy    string   `json:"strategy"`
	Extensions  []string `json:"extensions"`
	Tools       []string `json:"tools"`
	RecentCalls []string `json:"recent_calls"`
}

// runInfo queries a running server's /info endpoint and prints a summary of
// its state. It backs the "switchyard info" subcommand, so operators can
// inspect a deployment without reading its config or logs.
func runInfo(w io.Writer, baseURL string) int {
	client := &http.Client{Timeout: 10 * time.Second}
	url := strings.TrimRight(baseURL, "/") + "/info"

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(w, "switchyard: cannot reach %s: %v\n", url, err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(w, "switchyard: %s answered %s\n", url, resp.Status)
		return 1
	}

	var info serverInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		fmt.Fprintf(w, "switchyard: decode %s response: %v\n", url, err)
		return 1
	}

	fmt.Fprintf(w, "Version:    %s\n", info.Version)
	fmt.Fprintf(w, "Strategy:   %s\n", info.Strategy)
	fmt.Fprintf(w, "Extensions: %d\n", len(info.Extensions))
	for _, name := range info.Extensions {
		fmt.Fprintf(w, "  - %s\n", name)
	}
	fmt.Fprintf(w, "Tools:      %d\n", len(info.Tools))
	for _, name := range info.Tools {
		fmt.Fprintf(w, "  - %s\n", name)
	}
	if len(info.RecentCalls) > 0 {
		fmt.Fprintf(w, "Recent calls (most recent first):\n")
		for _, name := range info.RecentCalls {
			fmt.Fprintf(w, "  - %s\n", name)
		}
	}
	return 0
}
