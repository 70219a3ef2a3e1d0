package api

import (
	"fmt"
	"html"
	"net/http"

	"github.com/pysugar/calendar-nexus/internal/auth/handshake"
)

// renderCallbackSuccess shows the human who just consented that the link is
// live. The bearer token, when present, is shown exactly once.
func renderCallbackSuccess(w http.ResponseWriter, result *handshake.Result, bearer string) {
	tokenBlock := ""
	if bearer != "" {
		tokenBlock = fmt.Sprintf(`<p>Your API token (shown once, store it safely):</p><p><code>%s</code></p>`, html.EscapeString(bearer))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Calendar Connected</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; text-align: center; }
		.success { color: #4ade80; font-size: 24px; margin-bottom: 10px; }
		code { background: #374151; padding: 2px 6px; border-radius: 4px; color: #fbbf24; word-break: break-all; }
	</style>
</head>
<body>
	<div class="success">✅ Calendar Connected</div>
	<p>Account <strong>%s</strong> is now linked.</p>
	%s
	<p>You can close this window.</p>
</body>
</html>`, html.EscapeString(result.Email), tokenBlock)
}

// renderCallbackError shows a failure page. The handshake stays restartable:
// re-running authorize begins a fresh session.
func renderCallbackError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Authorization Failed</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; text-align: center; }
		.failure { color: #f87171; font-size: 24px; margin-bottom: 10px; }
	</style>
</head>
<body>
	<div class="failure">❌ Authorization Failed</div>
	<p>%s</p>
	<p>Start the authorization again from where you began.</p>
</body>
</html>`, html.EscapeString(message))
}
