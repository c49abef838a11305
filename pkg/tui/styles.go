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
	"github.com/charmbracelet/lipgloss"

	"github.com/threatdeck/threatdeck/pkg/models"
)

// Dracula theme colors.
const (
	draculaForeground = "#F8F8F2"
	draculaCyan       = "#8BE9FD"
	draculaGreen      = "#50FA7B"
	draculaOrange     = "#FFB86C"
	draculaPink       = "#FF79C6"
	draculaPurple     = "#BD93F9"
	draculaRed        = "#FF5555"
	draculaYellow     = "#F1FA8C"
	draculaComment    = "#6272A4"
)

type styles struct {
	title    lipgloss.Style
	section  lipgloss.Style
	help     lipgloss.Style
	hint     lipgloss.Style
	success  lipgloss.Style
	errText  lipgloss.Style
	badge    lipgloss.Style
	panel    lipgloss.Style
	selected lipgloss.Style
	dim      lipgloss.Style
	bar      lipgloss.Style
	barAlt   lipgloss.Style
	user     lipgloss.Style
	ai       lipgloss.Style

	severity map[models.Severity]lipgloss.Style
}

func newStyles() styles {
	return styles{
		title: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaPink)).
			Bold(true),
		section: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaYellow)),
		help: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaComment)),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaOrange)),
		success: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaGreen)),
		errText: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaRed)).
			Bold(true),
		badge: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaPurple)).
			Bold(true),
		panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(draculaPurple)).
			Padding(0, 1),
		selected: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaCyan)).
			Bold(true),
		dim: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaComment)),
		bar: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaCyan)),
		barAlt: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaPurple)),
		user: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaCyan)),
		ai: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaForeground)),
		severity: map[models.Severity]lipgloss.Style{
			models.SeverityCritical: lipgloss.NewStyle().Foreground(lipgloss.Color(draculaRed)).Bold(true),
			models.SeverityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color(draculaOrange)),
			models.SeverityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color(draculaYellow)),
			models.SeverityLow:      lipgloss.NewStyle().Foreground(lipgloss.Color(draculaGreen)),
		},
	}
}

func (s styles) severityStyle(sev models.Severity) lipgloss.Style {
	if st, ok := s.severity[sev]; ok {
		return st
	}

	return s.dim
}

func connectivityIndicator(s styles, c string) string {
	switch c {
	case "connected":
		return s.success.Render("● connected")
	case "disconnected":
		return s.errText.Render("● disconnected")
	default:
		return s.hint.Render("● connecting")
	}
}
