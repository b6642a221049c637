// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//
// # Request Parsing
//
//	body, err := httputil.ReadBody(r)
//	if err == nil {
//		err = httputil.DecodeJSON(body, &value)
//	}
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.RecoveryMiddleware(onPanic),
//		httputil.LoggingMiddleware,
//		httputil.CORSMiddleware([]string{"*"}),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// RequestIDMiddleware must run first: the logging and recovery middleware
// read the request-scoped logger it stores in the context.
package httputil
