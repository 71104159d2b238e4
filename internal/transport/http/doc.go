// Package http implements the HTTP handlers of the filter search server. It
// is a thin layer between the transport and the search service: handlers
// parse and validate requests, call a service and render the response.
//
// # Endpoints
//
//	POST   /api/v1/searches               start a search, 202 with the queued job
//	GET    /api/v1/searches               list searches, filtered by status and since
//	GET    /api/v1/searches/{id}          job state and progress
//	DELETE /api/v1/searches/{id}          cancel a queued or running search
//	GET    /api/v1/searches/{id}/result   full result of one family
//	GET    /api/v1/searches/{id}/report   download a report file
//	GET    /api/v1/stats                  system statistics
//	GET    /healthz, /healthz/ready, /healthz/live
//	GET    /ws?search_id=                 progress stream
//
// # Error Handling
//
// All errors follow RFC 7807 Problem Details:
//
//	{
//	    "type": "/errors/search/no-candidates",
//	    "title": "No Candidates",
//	    "status": 422,
//	    "detail": "no filter candidates for this series length",
//	    "instance": "/api/v1/searches",
//	    "trace_id": "..."
//	}
//
// Service errors are mapped to API errors by serviceError. Engine failures
// pass through to the shared error handler, which maps them by type.
//
// # Testing
//
// Handlers are tested with httptest against a mocked SearchServiceInterface.
package http
