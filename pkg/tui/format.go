/*
 * Copyright 2025 Threatdeck Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/threatdeck/threatdeck/pkg/models"
)

const (
	logRefDisplayLen = 8
	maxLogButtons    = 3
)

// formatThousands renders an integer with comma group separators.
func formatThousands(n int) string {
	negative := n < 0
	if negative {
		n = -n
	}

	digits := fmt.Sprintf("%d", n)

	var b strings.Builder

	if negative {
		b.WriteByte('-')
	}

	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])

		if len(digits) > lead {
			b.WriteByte(',')
		}
	}

	for i := lead; i < len(digits); i += 3 {
		b.WriteString(digits[i : i+3])

		if i+3 < len(digits) {
			b.WriteByte(',')
		}
	}

	return b.String()
}

// truncateLogRef shortens a log id for button display. The full id stays
// the lookup key.
func truncateLogRef(id string) string {
	if len(id) <= logRefDisplayLen {
		return id
	}

	return id[:logRefDisplayLen] + "…"
}

// lastRunDisplay renders the last analysis time, "Never" before the first
// run.
func lastRunDisplay(lastRun *time.Time) string {
	if lastRun == nil {
		return "Never"
	}

	return lastRun.Local().Format("2006-01-02 15:04:05")
}

// apiKeyBadge shows the 1-based active key position.
func apiKeyBadge(index int) string {
	return fmt.Sprintf("Key %d", index+1)
}

// scriptFilename names the downloaded remediation script.
func scriptFilename(now time.Time) string {
	return fmt.Sprintf("threatdeck_script_%d.sh", now.Unix())
}

// settingsIntervalString extracts processing_interval from the raw
// settings document for input prefill. JSON numbers arrive as float64.
func settingsIntervalString(values map[string]interface{}) string {
	switch v := values["processing_interval"].(type) {
	case float64:
		return strconv.Itoa(int(v))
	case int:
		return strconv.Itoa(v)
	case string:
		return v
	default:
		return ""
	}
}

// issueByID finds an issue in the snapshot, or nil when it is gone (for
// example after an ignore plus refresh).
func issueByID(issues []models.Issue, id string) *models.Issue {
	for i := range issues {
		if issues[i].ID == id {
			return &issues[i]
		}
	}

	return nil
}
