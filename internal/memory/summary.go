package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type rawLine struct {
	Channel   string `json:"channel"`
	SenderID  string `json:"senderId"`
	Request   string `json:"request"`
	Timestamp string `json:"timestamp"`
}

// BuildDailySummary reads memory/raw/YYYY/MM/DD/*.jsonl for date, groups
// entries by channel, keeps the last 20 requests per channel, and writes a
// Markdown summary file under dailyDir, per spec.md §4.J.
func BuildDailySummary(rawDir, dailyDir string, date time.Time) (string, error) {
	dir := filepath.Join(rawDir, date.UTC().Format("2006/01/02"))
	byChannel := map[string][]rawLine{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			entries = nil
		} else {
			return "", fmt.Errorf("read raw memory dir: %w", err)
		}
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var rl rawLine
			if err := json.Unmarshal(scanner.Bytes(), &rl); err != nil {
				continue
			}
			byChannel[rl.Channel] = append(byChannel[rl.Channel], rl)
		}
		f.Close()
	}

	channels := make([]string, 0, len(byChannel))
	for c := range byChannel {
		channels = append(channels, c)
	}
	sort.Strings(channels)

	dateStr := date.UTC().Format("2006-01-02")
	var b strings.Builder
	fmt.Fprintf(&b, "# Daily summary for %s\n\n", dateStr)
	if len(channels) == 0 {
		b.WriteString("No activity recorded.\n")
	}
	for _, c := range channels {
		lines := byChannel[c]
		if len(lines) > 20 {
			lines = lines[len(lines)-20:]
		}
		fmt.Fprintf(&b, "## %s (%d requests)\n\n", c, len(byChannel[c]))
		for _, rl := range lines {
			fmt.Fprintf(&b, "- `%s` %s: %s\n", rl.Timestamp, rl.SenderID, rl.Request)
		}
		b.WriteString("\n")
	}

	outPath := filepath.Join(dailyDir, dateStr+".md")
	if err := os.MkdirAll(dailyDir, 0o755); err != nil {
		return "", fmt.Errorf("create daily summary dir: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write daily summary: %w", err)
	}
	return outPath, nil
}
