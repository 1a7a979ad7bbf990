// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

// Package services adapts component lifecycles to suture.Service.
// Each wrapper translates a blocking Run/ListenAndServe pattern into
// suture's context-aware Serve contract. The embedding worker needs no
// wrapper; it implements Serve directly.
package services
