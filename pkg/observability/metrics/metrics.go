package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	loginsTotal           atomic.Int64
	authDeniedTotal       atomic.Int64
	requestsSubmitted     atomic.Int64
	resultsUploaded       atomic.Int64
	resultsShared         atomic.Int64
	emailsSentTotal       atomic.Int64
	emailsFailedTotal     atomic.Int64
	httpRequestsTotal     atomic.Int64
	httpServerErrorsTotal atomic.Int64
)

func IncLogins()           { loginsTotal.Add(1) }
func IncAuthDenied()       { authDeniedTotal.Add(1) }
func IncRequestsSubmitted() { requestsSubmitted.Add(1) }
func IncResultsUploaded()  { resultsUploaded.Add(1) }
func IncResultsShared()    { resultsShared.Add(1) }
func IncEmailsSent()       { emailsSentTotal.Add(1) }
func IncEmailsFailed()     { emailsFailedTotal.Add(1) }
func IncHTTPRequests()     { httpRequestsTotal.Add(1) }
func IncHTTPServerErrors() { httpServerErrorsTotal.Add(1) }

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	write := func(name, help string, value int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %d\n", name, value)
	}

	write("labworks_auth_logins_total", "Number of successful logins.", loginsTotal.Load())
	write("labworks_auth_denied_total", "Number of requests denied by the access policy.", authDeniedTotal.Load())
	write("labworks_workflow_requests_submitted_total", "Number of test requests submitted.", requestsSubmitted.Load())
	write("labworks_workflow_results_uploaded_total", "Number of test results uploaded.", resultsUploaded.Load())
	write("labworks_workflow_results_shared_total", "Number of test results shared by email.", resultsShared.Load())
	write("labworks_delivery_emails_sent_total", "Number of emails sent.", emailsSentTotal.Load())
	write("labworks_delivery_emails_failed_total", "Number of email deliveries that failed.", emailsFailedTotal.Load())
	write("labworks_http_requests_total", "Number of HTTP requests served.", httpRequestsTotal.Load())
	write("labworks_http_server_errors_total", "Number of HTTP 5xx responses.", httpServerErrorsTotal.Load())
}
