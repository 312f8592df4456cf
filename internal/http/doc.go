// Package http exposes the attendance service over a chi router.
//
// Attendee views, unauthenticated and read-only apart from reissue:
//   - GET /attendance/{registrantID}[?at=RFC3339]: current status with the live
//     projection of in-progress minutes.
//   - GET /attendance/{registrantID}/stream: Server-Sent Events, one "attendance"
//     event per projection tick.
//   - GET /badges/{token}: badge poll. ISSUED includes the attendance snapshot,
//     EXPIRED carries redirect_to once a replacement exists.
//   - GET /badges/{token}/stream: "badge" events on state change.
//   - POST /badges/{token}/reissue: mints a replacement for an expired voucher.
//
// Staff routes require the X-Station-ID and X-Station-Key headers:
//   - POST /registrants {"registrant_id"}: enrollment, 201 when created.
//   - POST /scans {"registrant_id","zone_id","action"}: action defaults to auto.
//   - POST /attendance/{registrantID}/check-in|switch {"zone_id"} and check-out.
//   - GET /attendance/{registrantID}/log, GET /zones/{zoneID}/occupants.
//   - POST /badges/{token}/issue.
//   - PUT /rules/{date}, GET /rules/{date} exchanging application.DailyRuleInput.
//   - POST /rules/series copying one template rule across the days of a
//     repeat pattern (application.RuleSeriesInput).
//
// Precondition failures answer 409 with error_code set to the upper-cased
// precondition code.
package http
