// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package web embeds the HTML templates served by the page handlers.
package web

import "embed"

//go:embed templates
var Templates embed.FS
