// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

/*
Package supervisor provides Suture-based process supervision.

The tree has two layers under the root:

  - messaging: the pipeline message router and the embedding worker
  - api: the HTTP server

The layering isolates failures: a crashing consumer restarts inside the
messaging layer without interrupting HTTP traffic, and vice versa.
Supervisor events are logged through sutureslog into the zerolog-backed
slog handler.
*/
package supervisor
