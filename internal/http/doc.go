// Package http exposes the desk reservation services over a JSON API.
//
// The router exposes the following endpoints:
//   - GET /healthz: liveness probe, {"status":"ok"}.
//   - POST /api/auth/request-otp: body {"email"}. Mails a one-time code and
//     returns {"status":"ok"}. Rate limited per client IP.
//   - POST /api/auth/verify-otp: body {"email","code"}. Returns {"token","user"};
//     the token is also set as the `session_token` cookie.
//   - POST /api/auth/logout: revokes the current session.
//   - GET /api/me, GET /api/users, GET /api/desks: the caller, enabled users and
//     enabled desks.
//   - GET /api/reservations?start_date=&end_date=: effective reservations,
//     including synthesized named desk rows flagged with "auto".
//   - POST /api/reservations: body {"desk_id","date","slot"}; returns the
//     created rows. PATCH /api/reservations/{id} moves one row and
//     DELETE /api/reservations/{id} cancels it.
//   - PUT /api/named-desk/absences: body {"desk_id","date","slot","released"};
//     returns the owner's absences.
//   - POST /api/admin/users, POST /api/admin/desks, POST /api/admin/force-cancel,
//     GET /api/admin/stats: administrator maintenance.
//
// Everything under /api except the auth code endpoints requires a session
// token, sent as `Authorization: Bearer <token>` or the `session_token`
// cookie. Dates use YYYY-MM-DD and slots are AM, PM or FULL.
//
// Request/response DTOs live alongside their respective handlers.
package http
